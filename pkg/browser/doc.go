// Package browser hosts the tabs a capture runs in, through Playwright.
//
// A Manager owns one Chromium instance and a single browser context whose
// viewport and device scale factor come from the browser config section.
// Tabs are opened into that context and one of them is active at a time.
//
// # Tabs
//
// A Tab plays three roles for the capture pipeline:
//
//  1. Capturer: the background context screenshots the active tab's
//     viewport as PNG at device resolution
//  2. RatioSource: the page runtime reads window.devicePixelRatio fresh for
//     every capture
//  3. Surface: the selection overlay's DOM nodes and listeners live in a
//     small script installed into the page
//
// # Injection
//
// Inject installs the page script and starts a content.Runtime attached to
// the bus as page/<tab-id>. Pointer and Escape events reach the runtime
// through an exposed binding and are posted onto its loop.
//
// A main-frame navigation or a closed page discards the runtime. The tab
// has to be injected again before the next capture.
//
// # Scripted drags
//
// Drag moves the real mouse, so a headless run exercises the same overlay
// code path as a person dragging in a headed browser.
package browser
