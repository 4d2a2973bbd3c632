package dataset

import "strings"

// demosCodes maps the three-letter emotion codes used in DEMoS filenames
// (for example PR_f_21_gio_031.wav) to class names.
var demosCodes = map[string]string{
	"col": "guilt",
	"dis": "disgust",
	"gio": "joy",
	"pau": "fear",
	"rab": "anger",
	"sor": "surprise",
	"tri": "sadness",
}

var demosClasses = []string{"anger", "disgust", "fear", "guilt", "joy", "sadness", "surprise"}

func parseDEMoS(filename string) (string, bool) {
	base := strings.TrimSuffix(filename, ".wav")
	for _, field := range strings.Split(base, "_") {
		if class, ok := demosCodes[strings.ToLower(field)]; ok {
			return class, true
		}
	}
	return "", false
}

// NewDEMoS opens a DEMoS-layout directory of Italian emotional speech.
func NewDEMoS(root string, audioSize int, useSpectrogram bool) (*WavEmotionDataset, error) {
	return newWavEmotionDataset(root, audioSize, useSpectrogram, parseDEMoS, demosClasses)
}
