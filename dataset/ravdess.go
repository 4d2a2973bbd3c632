package dataset

import "strings"

// ravdessCodes maps the third dash-separated field of RAVDESS filenames
// (for example 03-01-06-01-02-01-12.wav) to class names.
var ravdessCodes = map[string]string{
	"01": "neutral",
	"02": "calm",
	"03": "happy",
	"04": "sad",
	"05": "angry",
	"06": "fearful",
	"07": "disgust",
	"08": "surprised",
}

var ravdessClasses = []string{"angry", "calm", "disgust", "fearful", "happy", "neutral", "sad", "surprised"}

func parseRAVDESS(filename string) (string, bool) {
	base := strings.TrimSuffix(filename, ".wav")
	fields := strings.Split(base, "-")
	if len(fields) < 3 {
		return "", false
	}
	class, ok := ravdessCodes[fields[2]]
	return class, ok
}

// NewRAVDESS opens a RAVDESS-layout directory of emotional speech and song.
func NewRAVDESS(root string, audioSize int, useSpectrogram bool) (*WavEmotionDataset, error) {
	return newWavEmotionDataset(root, audioSize, useSpectrogram, parseRAVDESS, ravdessClasses)
}
