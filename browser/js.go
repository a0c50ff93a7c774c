package browser

import (
	"encoding/json"
	"fmt"
)

// StampAttr is the attribute the indexer writes onto interactive DOM nodes.
// A stamped node is addressable as window.__deepQuery(index) until the next
// navigation or re-index.
const StampAttr = "data-chauffeur-idx"

// jsString JSON-encodes s for safe embedding inside a JavaScript expression.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// indexExpr builds the page-indexing expression. It walks the DOM including
// every shadow root, clears previous stamps, collects interactive nodes
// (optionally under scopeSelector), detects the topmost modal, labels and
// de-duplicates the visible ones, stamps them with StampAttr and installs
// window.__deepQuery. The expression evaluates to a JSON string of
// {index, label, desc, modal} records.
func indexExpr(scopeSelector string) string {
	return fmt.Sprintf(indexTemplate, jsString(StampAttr), jsString(scopeSelector))
}

const indexTemplate = `(() => {
  const ATTR = %s;
  const SCOPE = %s;
  const SELECTOR = [
    'a[href]', 'button', 'input', 'select', 'textarea',
    '[role=button]', '[role=link]', '[role=tab]', '[role=menuitem]',
    '[role=checkbox]', '[role=radio]', '[role=textbox]',
    '[onclick]', '[tabindex]:not([tabindex="-1"])',
    'details > summary', '[contenteditable="true"]'
  ].join(',');

  const eachShadow = (root, fn) => {
    fn(root);
    for (const el of root.querySelectorAll('*')) {
      if (el.shadowRoot) eachShadow(el.shadowRoot, fn);
    }
  };

  eachShadow(document, root => {
    for (const el of root.querySelectorAll('[' + ATTR + ']')) el.removeAttribute(ATTR);
  });

  const visible = el =>
    el.offsetParent !== null || getComputedStyle(el).position === 'fixed';

  let scopeRoots = [document];
  if (SCOPE) {
    scopeRoots = Array.from(document.querySelectorAll(SCOPE));
    if (scopeRoots.length === 0) return JSON.stringify([]);
  }
  const nodes = [];
  for (const scopeRoot of scopeRoots) {
    eachShadow(scopeRoot, root => {
      if (root.querySelectorAll) {
        for (const el of root.querySelectorAll(SELECTOR)) nodes.push(el);
      }
    });
  }

  // Topmost modal: the last visible real dialog wins; presentation overlays
  // only count when no real dialog is visible.
  let modal = null, presentation = null;
  eachShadow(document, root => {
    if (!root.querySelectorAll) return;
    for (const el of root.querySelectorAll('[role="dialog"],[aria-modal="true"],[role="presentation"]')) {
      if (!visible(el)) continue;
      if (el.matches('[role="dialog"],[aria-modal="true"]')) modal = el;
      else presentation = el;
    }
  });
  if (!modal) modal = presentation;

  if (modal) {
    nodes.sort((a, b) => (modal.contains(b) ? 1 : 0) - (modal.contains(a) ? 1 : 0));
  }

  const label = el => {
    const tag = el.tagName.toLowerCase();
    const role = el.getAttribute('role');
    let base;
    if (tag === 'a') base = 'link';
    else if (tag === 'button') base = 'button';
    else if (tag === 'input') base = 'input:' + (el.type || 'text');
    else if (tag === 'select') base = 'select';
    else if (tag === 'textarea') base = 'textarea';
    else if (tag === 'summary') base = 'summary';
    else if (el.isContentEditable) base = 'editor';
    else if (role) base = role;
    else base = tag;
    if (el.disabled) base += ':disabled';
    return base;
  };

  const describe = el => {
    const cap = s => {
      s = (s || '').replace(/\s+/g, ' ').trim();
      return s.length > 120 ? s.slice(0, 120) : s;
    };
    const aria = el.getAttribute('aria-label');
    if (aria) return cap(aria);
    const text = el.textContent;
    if (text && text.trim()) return cap(text);
    const placeholder = el.getAttribute('placeholder');
    if (placeholder) return cap(placeholder);
    const name = el.getAttribute('name');
    if (name) return cap(name);
    if (el.value) return cap(String(el.value));
    const href = el.getAttribute('href');
    if (href) return cap(href);
    return '';
  };

  const seen = new Set();
  const results = [];
  let idx = 0;
  for (const el of nodes) {
    if (!visible(el)) continue;
    const lab = label(el);
    const desc = describe(el);
    const inModal = modal !== null && modal.contains(el);
    const key = (inModal ? 'modal' : 'page') + '|' + lab + '|' + desc;
    if (seen.has(key)) continue;
    seen.add(key);
    el.setAttribute(ATTR, String(idx));
    results.push({ index: idx, label: lab, desc: desc, modal: inModal });
    idx++;
  }

  window.__deepQuery = n => {
    const find = root => {
      if (!root.querySelector) return null;
      const hit = root.querySelector('[' + ATTR + '="' + n + '"]');
      if (hit) return hit;
      for (const el of root.querySelectorAll('*')) {
        if (el.shadowRoot) {
          const nested = find(el.shadowRoot);
          if (nested) return nested;
        }
      }
      return null;
    };
    return find(document);
  };
  window.__indexed = true;
  return JSON.stringify(results);
})()`

// probeIndexedExpr evaluates to true when the page has been stamped since the
// last navigation. Navigations reset window state, so a fresh document always
// probes false.
func probeIndexedExpr() string {
	return `window.__indexed === true && typeof window.__deepQuery === 'function'`
}

// lookupExpr evaluates to true when the stamped node for index i still
// exists.
func lookupExpr(i int) string {
	return fmt.Sprintf(`typeof window.__deepQuery === 'function' && window.__deepQuery(%d) !== null`, i)
}

// scrollCenterExpr scrolls stamped node i to the viewport center and returns
// the centroid of its bounding rect as {x, y}, or null when the stamp is
// stale.
func scrollCenterExpr(i int) string {
	return fmt.Sprintf(`(() => {
  const el = window.__deepQuery ? window.__deepQuery(%d) : null;
  if (!el) return null;
  el.scrollIntoView({ block: 'center', inline: 'center', behavior: 'instant' });
  const r = el.getBoundingClientRect();
  return JSON.stringify({ x: r.left + r.width / 2, y: r.top + r.height / 2 });
})()`, i)
}

// elementInfoExpr returns {label, desc, editable} for stamped node i, or null
// when stale. The editable flag gates the type operation.
func elementInfoExpr(i int) string {
	return fmt.Sprintf(`(() => {
  const el = window.__deepQuery ? window.__deepQuery(%d) : null;
  if (!el) return null;
  const tag = el.tagName.toLowerCase();
  const editable = tag === 'input' || tag === 'textarea' ||
    el.isContentEditable || el.getAttribute('role') === 'textbox';
  const cap = s => {
    s = (s || '').replace(/\s+/g, ' ').trim();
    return s.length > 120 ? s.slice(0, 120) : s;
  };
  const desc = el.getAttribute('aria-label') || el.textContent ||
    el.getAttribute('placeholder') || el.getAttribute('name') || '';
  return JSON.stringify({
    label: tag,
    desc: cap(desc),
    editable: editable,
    contentEditable: !!el.isContentEditable
  });
})()`, i)
}

// clearEditableExpr focuses stamped node i and prepares it for text entry.
// For contenteditable nodes it select-alls via Range + Selection (the caller
// then sends one Backspace); for value-bearing nodes it empties the value.
func clearEditableExpr(i int) string {
	return fmt.Sprintf(`(() => {
  const el = window.__deepQuery ? window.__deepQuery(%d) : null;
  if (!el) return false;
  el.focus();
  if (el.isContentEditable) {
    const range = document.createRange();
    range.selectNodeContents(el);
    const sel = window.getSelection();
    sel.removeAllRanges();
    sel.addRange(range);
    return true;
  }
  if ('value' in el) el.value = '';
  return true;
})()`, i)
}

// setValueNativeExpr assigns text to stamped node i through the native value
// setter, bypassing React's synthetic descriptor, then fires bubbling input
// and change events so framework state catches up.
func setValueNativeExpr(i int, text string) string {
	return fmt.Sprintf(`(() => {
  const el = window.__deepQuery ? window.__deepQuery(%d) : null;
  if (!el || el.isContentEditable || !('value' in el)) return false;
  const proto = el.tagName === 'TEXTAREA'
    ? HTMLTextAreaElement.prototype
    : HTMLInputElement.prototype;
  const desc = Object.getOwnPropertyDescriptor(proto, 'value');
  if (desc && desc.set) desc.set.call(el, %s);
  else el.value = %s;
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})()`, i, jsString(text), jsString(text))
}

// textExpr builds the text-extraction expression: a depth-first walk of the
// document (or the first node matching selector) including shadow roots,
// collecting text nodes whose nearest element ancestor is visible and not
// script/style/noscript/svg. Whitespace is collapsed; the Go side caps the
// total length.
func textExpr(selector string) string {
	return fmt.Sprintf(`(() => {
  const SKIP = { SCRIPT: 1, STYLE: 1, NOSCRIPT: 1, SVG: 1 };
  const SEL = %s;
  const visible = el =>
    el.offsetParent !== null || getComputedStyle(el).position === 'fixed';
  const parts = [];
  const walk = node => {
    if (node.nodeType === Node.TEXT_NODE) {
      const text = node.textContent.replace(/\s+/g, ' ').trim();
      if (!text) return;
      const el = node.parentElement;
      if (!el || SKIP[el.tagName] || !visible(el)) return;
      parts.push(text);
      return;
    }
    if (node.nodeType === Node.ELEMENT_NODE && SKIP[node.tagName]) return;
    if (node.shadowRoot) walk(node.shadowRoot);
    for (const child of node.childNodes || []) walk(child);
  };
  let root = document;
  if (SEL) {
    root = document.querySelector(SEL);
    if (!root) return '';
  }
  walk(root);
  return parts.join(' ');
})()`, jsString(selector))
}

// htmlExpr returns the outerHTML of the first element matching selector, or
// null when nothing matches. The Go side caps the length.
func htmlExpr(selector string) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  return el ? el.outerHTML : null;
})()`, jsString(selector))
}

// pageInfoExpr returns the current {url, title}.
func pageInfoExpr() string {
	return `JSON.stringify({ url: location.href, title: document.title })`
}
