package stage

import (
	"os"

	"github.com/oldphotos/api/internal/model"
)

// Stage keys, in pipeline catalog order.
const (
	KeyCrop           = "crop"
	KeyInpaint        = "inpaint"
	KeySpotRemoval    = "spot_removal"
	KeyScratchRemoval = "scratch_removal"
	KeyFaceRestore    = "face_restore"
	KeyColorize       = "colorize"
	KeyUpscale        = "upscale"
	KeyOnlineRestore  = "online_restore"
)

// ModelInfo describes one selectable model variant of a stage.
type ModelInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Definition is the static configuration of one pipeline stage. Adding a
// stage is a data edit in catalog(); the argument builder is the only
// per-stage code.
type Definition struct {
	Key       string
	HumanName string
	// Script is the default worker script; BuildArgs may route to another
	// one (colorize picks a script per model).
	Script       string
	OutputPrefix string
	// Manual stages cannot build their argv without user input.
	Manual   bool
	Disabled bool
	// RequiresAPIKey names an environment variable that must be non-empty
	// for the stage to be exposed at all.
	RequiresAPIKey string

	DefaultModel string
	Models       map[string]ModelInfo

	// NeedsInput reports whether the job still lacks this stage's
	// user-supplied input. Always false for automatic stages.
	NeedsInput func(j *model.Job) bool
	// BuildArgs returns the worker script and the argv appended after it.
	BuildArgs func(inputPath, outputPath string, j *model.Job, selectedModel string) (string, []string)
	// OnComplete releases the per-stage input the run just consumed. Rewind
	// reuses it to clear inputs of stages being undone.
	OnComplete func(j *model.Job)
}

// Available reports whether the stage may be offered: not disabled and,
// when it requires an API key, that key is set in the environment. Checked
// at enumeration time so a key exported later shows up without restart.
func (d *Definition) Available() bool {
	if d.Disabled {
		return false
	}
	if d.RequiresAPIKey != "" && os.Getenv(d.RequiresAPIKey) == "" {
		return false
	}
	return true
}

// HasModel reports whether key names a declared variant of this stage.
func (d *Definition) HasModel(key string) bool {
	_, ok := d.Models[key]
	return ok
}

func catalog() []*Definition {
	return []*Definition{
		{
			Key:          KeyCrop,
			HumanName:    "Crop",
			Script:       "crop.py",
			OutputPrefix: "crop",
			Manual:       true,
			NeedsInput:   func(j *model.Job) bool { return j.CropRect == "" },
			BuildArgs: func(in, out string, j *model.Job, _ string) (string, []string) {
				// The crop string is opaque here; the worker understands
				// x,y,w,h / E:... / P:... shapes.
				return "crop.py", []string{in, out, j.CropRect}
			},
			OnComplete: func(j *model.Job) { j.CropRect = "" },
		},
		{
			Key:          KeyInpaint,
			HumanName:    "Inpaint",
			Script:       "inpaint.py",
			OutputPrefix: "inpaint",
			Manual:       true,
			NeedsInput:   func(j *model.Job) bool { return j.MaskPath == "" },
			BuildArgs: func(in, out string, j *model.Job, _ string) (string, []string) {
				return "inpaint.py", []string{in, j.MaskPath, out}
			},
			OnComplete: func(j *model.Job) {
				if j.MaskPath != "" {
					os.Remove(j.MaskPath)
					j.MaskPath = ""
				}
			},
		},
		{
			Key:          KeySpotRemoval,
			HumanName:    "Spot removal",
			Script:       "clean_spots.py",
			OutputPrefix: "spots",
			DefaultModel: "lama",
			Models: map[string]ModelInfo{
				"lama":   {Name: "LaMa", Description: "Neural inpainting, best quality"},
				"opencv": {Name: "OpenCV", Description: "Classic inpainting, fast"},
			},
			BuildArgs: func(in, out string, _ *model.Job, m string) (string, []string) {
				return "clean_spots.py", []string{in, out, m}
			},
		},
		{
			Key:          KeyScratchRemoval,
			HumanName:    "Scratch removal",
			Script:       "restore.py",
			OutputPrefix: "scratch",
			BuildArgs: func(in, out string, _ *model.Job, _ string) (string, []string) {
				return "restore.py", []string{in, out}
			},
		},
		{
			Key:          KeyFaceRestore,
			HumanName:    "Face restoration",
			Script:       "face_restore.py",
			OutputPrefix: "face",
			BuildArgs: func(in, out string, _ *model.Job, _ string) (string, []string) {
				return "face_restore.py", []string{in, out}
			},
		},
		{
			Key:          KeyColorize,
			HumanName:    "Colorization",
			Script:       "colorize_ddcolor.py",
			OutputPrefix: "colorize",
			DefaultModel: "ddcolor",
			Models: map[string]ModelInfo{
				"ddcolor":    {Name: "DDColor", Description: "ICCV 2023, vivid and accurate"},
				"siggraph17": {Name: "Zhang SIGGRAPH'17", Description: "Interactive colorization model"},
				"eccv16":     {Name: "Zhang ECCV'16", Description: "Original colorful colorization"},
				"artistic":   {Name: "DeOldify Artistic", Description: "Vibrant, may hallucinate"},
				"stable":     {Name: "DeOldify Stable", Description: "Conservative, consistent"},
			},
			BuildArgs: func(in, out string, _ *model.Job, m string) (string, []string) {
				switch m {
				case "siggraph17", "eccv16":
					return "colorize.py", []string{in, out, m}
				case "artistic", "stable":
					return "colorize_deoldify.py", []string{in, out, m}
				default:
					return "colorize_ddcolor.py", []string{in, out}
				}
			},
		},
		{
			Key:          KeyUpscale,
			HumanName:    "Upscale",
			Script:       "upscale.py",
			OutputPrefix: "upscale",
			DefaultModel: "x4plus",
			Models: map[string]ModelInfo{
				"x4plus":       {Name: "Real-ESRGAN x4plus", Description: "General purpose, best quality"},
				"x4plus-anime": {Name: "Real-ESRGAN x4plus-anime", Description: "Drawings and illustrations"},
				"x2plus":       {Name: "Real-ESRGAN x2plus", Description: "Moderate upscale, faster"},
				"ultrasharp":   {Name: "UltraSharp", Description: "Crisp detail, may oversharpen"},
				"ultramix":     {Name: "UltraMix Balanced", Description: "Balanced detail and smoothness"},
				"compact":      {Name: "Compact", Description: "Small model, very fast"},
				"lanczos":      {Name: "Lanczos", Description: "No AI, instant"},
			},
			BuildArgs: func(in, out string, _ *model.Job, m string) (string, []string) {
				// Scale is left to the worker default.
				return "upscale.py", []string{in, out, m}
			},
		},
		{
			Key:            KeyOnlineRestore,
			HumanName:      "Online restoration",
			Script:         "restore_openai.py",
			OutputPrefix:   "online",
			RequiresAPIKey: "OPENAI_API_KEY",
			BuildArgs: func(in, out string, _ *model.Job, _ string) (string, []string) {
				return "restore_openai.py", []string{in, out}
			},
		},
	}
}
