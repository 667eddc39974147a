package clientsim

import "unicode/utf16"

// diffOps computes the minimal insert/delete pair turning old into next
// by comparing the longest common prefix and the longest common suffix
// of the unchanged region, in UTF-16 code units to match the OT engine's
// position convention.
func diffOps(old, next string) (deletePos, deleteLen int, insertPos int, insertText string) {
	o := utf16.Encode([]rune(old))
	n := utf16.Encode([]rune(next))

	prefix := 0
	for prefix < len(o) && prefix < len(n) && o[prefix] == n[prefix] {
		prefix++
	}

	oSuffixLimit := len(o) - prefix
	nSuffixLimit := len(n) - prefix
	suffix := 0
	for suffix < oSuffixLimit && suffix < nSuffixLimit &&
		o[len(o)-1-suffix] == n[len(n)-1-suffix] {
		suffix++
	}

	deletePos = prefix
	deleteLen = len(o) - prefix - suffix
	insertPos = prefix
	insertText = string(utf16.Decode(n[prefix : len(n)-suffix]))
	return
}
