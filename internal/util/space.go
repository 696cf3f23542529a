package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// PadRight fits a string to a fixed display width, truncating with an
// ellipsis when it overflows. Width is measured in terminal cells so
// wide runes in names and chat lines line up.
func PadRight(str string, width int) string {
	if w := runewidth.StringWidth(str); w >= width {
		if w == width {
			return str
		}
		return runewidth.Truncate(str, width, "...")
	}
	return str + strings.Repeat(" ", width-runewidth.StringWidth(str))
}
