package adapter

import "regexp"

// Some sites only expose a blurred preview image whose name mirrors the video file, e.g.
// abc123_blur.jpg next to abc123.mp4. The guess is unverified.
var blurPattern = regexp.MustCompile(`(?i)[_-]blur(?:red)?\.(?:jpe?g|png|webp)(\?.*)?$`)

const blurDiagnostic = "playable url derived from blurred thumbnail name"

// playableFromBlur guesses the video URL behind a blurred thumbnail.
func playableFromBlur(thumbnail string) (string, bool) {
	if !blurPattern.MatchString(thumbnail) {
		return "", false
	}
	return blurPattern.ReplaceAllString(thumbnail, ".mp4"), true
}
