package js

// IS_TOP_VISIBLE reports whether the element at xpath has a size and is the
// topmost element at the centre of one of its client rects, i.e. a real click
// would land on it rather than on a cookie banner or sticky header.
var IS_TOP_VISIBLE string = `
(xpath) => {
    element = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
    if (!element) return false;

    if (element.offsetWidth === 0 || element.offsetHeight === 0) return false;
    var rects = element.getClientRects(),
        on_top = function (r) {
            var x = (r.left + r.right) / 2, y = (r.top + r.bottom) / 2;
            var hit = document.elementFromPoint(x, y);
            return hit === element || element.contains(hit);
        };
    for (var i = 0, l = rects.length; i < l; i++) {
        var r = rects[i]
        if (on_top(r)) return true;
    }
    return false;
}
`

// CLICK dispatches a click from script, bypassing whatever covers the element.
var CLICK string = `
function () {
    this.click();
}
`
