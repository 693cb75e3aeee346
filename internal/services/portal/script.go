package portal

import (
	"fmt"
	"strings"
)

// forceClickScript builds the script for a direct element click. Picker
// results come back as XPath references while configured controls are CSS
// selectors, so both lookup styles are supported.
func forceClickScript(selector string) string {
	if strings.HasPrefix(selector, "/") {
		return fmt.Sprintf(
			`(function(){var r=document.evaluate(%q,document,null,XPathResult.FIRST_ORDERED_NODE_TYPE,null);if(!r.singleNodeValue){throw new Error("no node for xpath");}r.singleNodeValue.click();})()`,
			selector)
	}
	return fmt.Sprintf(
		`(function(){var e=document.querySelector(%q);if(!e){throw new Error("no node for selector");}e.click();})()`,
		selector)
}
