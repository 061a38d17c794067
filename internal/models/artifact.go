package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrArtifact is the sentinel wrapped by every [ArtifactError].
var ErrArtifact = errors.New("models: invalid model artifact")

// SynthesizerSubdir is appended to the configured synthesizer directory to
// locate the checkpoint.
const SynthesizerSubdir = "taco_pretrained"

// checkpointExts lists file extensions recognised as model checkpoints.
var checkpointExts = []string{".pt", ".pth", ".ckpt", ".onnx", ".safetensors", ".bin", ".index"}

// ArtifactError describes a model artifact that failed local validation.
type ArtifactError struct {
	// Role is the network the artifact belongs to ("encoder", ...).
	Role string
	// Path is the offending path.
	Path string
	// Reason is a short human-readable explanation.
	Reason string
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("models: %s artifact %q: %s", e.Role, e.Path, e.Reason)
}

// Unwrap makes every ArtifactError match [ErrArtifact].
func (e *ArtifactError) Unwrap() error { return ErrArtifact }

// Paths locates the three model artifacts on disk.
type Paths struct {
	// Encoder is the speaker-encoder checkpoint file.
	Encoder string `json:"encoder"`
	// SynthesizerDir is the directory holding the synthesizer run; the
	// checkpoint lives in its [SynthesizerSubdir] sub-directory.
	SynthesizerDir string `json:"synthesizer_dir"`
	// Vocoder is the vocoder checkpoint file.
	Vocoder string `json:"vocoder"`
}

// SynthesizerCheckpoint returns the directory actually handed to the
// synthesizer loader.
func (p Paths) SynthesizerCheckpoint() string {
	return filepath.Join(p.SynthesizerDir, SynthesizerSubdir)
}

// ValidatePaths checks every artifact locally and returns all problems found
// joined into one error. Each problem is an [*ArtifactError].
func ValidatePaths(p Paths) error {
	var errs []error
	if err := checkFile("encoder", p.Encoder); err != nil {
		errs = append(errs, err)
	}
	if err := checkSynthesizerDir(p); err != nil {
		errs = append(errs, err)
	}
	if err := checkFile("vocoder", p.Vocoder); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func checkFile(role, path string) error {
	if path == "" {
		return &ArtifactError{Role: role, Path: path, Reason: "path is empty"}
	}
	fi, err := os.Stat(path)
	if err != nil {
		return &ArtifactError{Role: role, Path: path, Reason: statReason(err)}
	}
	if fi.IsDir() {
		return &ArtifactError{Role: role, Path: path, Reason: "is a directory, want a checkpoint file"}
	}
	if fi.Size() == 0 {
		return &ArtifactError{Role: role, Path: path, Reason: "file is empty"}
	}
	if !isCheckpoint(path) {
		return &ArtifactError{Role: role, Path: path, Reason: "unrecognised checkpoint extension " + filepath.Ext(path)}
	}
	return nil
}

func checkSynthesizerDir(p Paths) error {
	const role = "synthesizer"
	if p.SynthesizerDir == "" {
		return &ArtifactError{Role: role, Path: p.SynthesizerDir, Reason: "path is empty"}
	}
	fi, err := os.Stat(p.SynthesizerDir)
	if err != nil {
		return &ArtifactError{Role: role, Path: p.SynthesizerDir, Reason: statReason(err)}
	}
	if !fi.IsDir() {
		return &ArtifactError{Role: role, Path: p.SynthesizerDir, Reason: "is not a directory"}
	}

	ckpt := p.SynthesizerCheckpoint()
	entries, err := os.ReadDir(ckpt)
	if err != nil {
		return &ArtifactError{Role: role, Path: ckpt, Reason: statReason(err)}
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		// TensorFlow runs keep a plain "checkpoint" index file next to the weights.
		if e.Name() == "checkpoint" || isCheckpoint(e.Name()) {
			return nil
		}
	}
	return &ArtifactError{Role: role, Path: ckpt, Reason: "no checkpoint found"}
}

func isCheckpoint(name string) bool {
	return slices.Contains(checkpointExts, strings.ToLower(filepath.Ext(name)))
}

func statReason(err error) string {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "does not exist"
	case errors.Is(err, os.ErrPermission):
		return "permission denied"
	default:
		return err.Error()
	}
}
