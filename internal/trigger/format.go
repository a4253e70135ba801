package trigger

import "fmt"

// FormatElapsed renders whole seconds as MM:SS with both fields zero-padded.
// Minutes keep growing past 99 rather than wrapping.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func runningText(seconds int) string {
	return fmt.Sprintf("Rendering: %s elapsed", FormatElapsed(seconds))
}

func endedText(seconds int) string {
	return "Rendering ended in " + FormatElapsed(seconds)
}

func reloadText(remaining int) string {
	return fmt.Sprintf("Reloading in %d", remaining)
}
