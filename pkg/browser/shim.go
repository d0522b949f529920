package browser

const (
	pointerBinding = "snapcropPointer"
	shimGlobal     = "__snapcrop"
)

// shimScript installs window.__snapcrop, the DOM half of the selection
// overlay. Every pointer and Escape event is forwarded to the
// snapcropPointer binding as (type, clientX, clientY). Installing twice is
// a no-op. Mount and unmount remove every data-snapcrop node, including
// ones a previous runtime left behind.
const shimScript = `() => {
  if (window.__snapcrop) return;

  const send = (type, e) => window.snapcropPointer(type, e ? e.clientX : 0, e ? e.clientY : 0);
  const onDown = (e) => { e.preventDefault(); send('down', e); };
  const onMove = (e) => send('move', e);
  const onUp = (e) => send('up', e);
  const onKey = (e) => { if (e.key === 'Escape') send('escape'); };

  let overlay = null;
  let box = null;
  let tracking = false;

  const clear = () => {
    document.removeEventListener('keydown', onKey, true);
    document.querySelectorAll('[data-snapcrop]').forEach((node) => node.remove());
    overlay = null;
    box = null;
  };

  window.__snapcrop = {
    mount() {
      clear();
      overlay = document.createElement('div');
      overlay.setAttribute('data-snapcrop', 'overlay');
      Object.assign(overlay.style, {
        position: 'fixed', left: '0', top: '0', width: '100vw', height: '100vh',
        zIndex: '2147483646', cursor: 'crosshair', background: 'rgba(0, 0, 0, 0.1)',
      });
      box = document.createElement('div');
      box.setAttribute('data-snapcrop', 'highlight');
      Object.assign(box.style, {
        position: 'fixed', left: '0', top: '0', width: '0', height: '0',
        zIndex: '2147483647', pointerEvents: 'none',
        border: '1px dashed #fff', background: 'rgba(255, 255, 255, 0.2)',
      });
      overlay.addEventListener('mousedown', onDown);
      document.addEventListener('keydown', onKey, true);
      document.documentElement.appendChild(overlay);
      document.documentElement.appendChild(box);
    },
    highlight(r) {
      if (!box) return;
      Object.assign(box.style, {
        left: r.left + 'px', top: r.top + 'px', width: r.width + 'px', height: r.height + 'px',
      });
    },
    track(on) {
      if (on && !tracking) {
        window.addEventListener('mousemove', onMove, true);
        window.addEventListener('mouseup', onUp, true);
      } else if (!on && tracking) {
        window.removeEventListener('mousemove', onMove, true);
        window.removeEventListener('mouseup', onUp, true);
      }
      tracking = on;
    },
    unmount() {
      clear();
    },
  };
}`
