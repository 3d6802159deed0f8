package tracking

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Flavor saves a model instance into a local directory, filling in the
// model descriptor as it goes. Flavor-specific options belong to the
// flavor value itself.
type Flavor interface {
	Name() string
	Save(model any, dir string, info *ModelInfo) error
}

// MLmodelFile is the descriptor file name flavors write next to the
// serialized model, matching the MLflow layout.
const MLmodelFile = "MLmodel"

// ModelInfo describes a logged model: which run it belongs to, where
// its artifacts live, and how each flavor serialized it.
type ModelInfo struct {
	RunID          string                    `json:"run_id" yaml:"run_id"`
	ArtifactPath   string                    `json:"artifact_path" yaml:"artifact_path"`
	UTCTimeCreated string                    `json:"utc_time_created" yaml:"utc_time_created"`
	Flavors        map[string]map[string]any `json:"flavors" yaml:"flavors"`
}

func NewModelInfo(runID, artifactPath string) *ModelInfo {
	return &ModelInfo{
		RunID:          runID,
		ArtifactPath:   artifactPath,
		UTCTimeCreated: time.Now().UTC().Format("2006-01-02 15:04:05.000000"),
		Flavors:        make(map[string]map[string]any),
	}
}

// AddFlavor records how a flavor serialized the model.
func (m *ModelInfo) AddFlavor(name string, conf map[string]any) {
	m.Flavors[name] = conf
}

// JSON renders the descriptor for the runs/log-model endpoint.
func (m *ModelInfo) JSON() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteMLmodel writes the YAML descriptor file into dir.
func (m *ModelInfo) WriteMLmodel(dir string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to serialize model descriptor: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, MLmodelFile), data, 0644)
}

// MsgpackFlavor serializes any Go value with msgpack. The serialized
// model lands in model.msgpack next to the MLmodel descriptor.
type MsgpackFlavor struct{}

func (MsgpackFlavor) Name() string { return "msgpack" }

func (f MsgpackFlavor) Save(model any, dir string, info *ModelInfo) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	payload, err := msgpack.Marshal(model)
	if err != nil {
		return fmt.Errorf("failed to serialize model: %w", err)
	}

	const dataFile = "model.msgpack"
	if err := os.WriteFile(filepath.Join(dir, dataFile), payload, 0644); err != nil {
		return err
	}

	info.AddFlavor(f.Name(), map[string]any{
		"data": dataFile,
	})
	return info.WriteMLmodel(dir)
}

// FileFlavor stages an already-serialized model file or directory tree.
// The model argument passed to Save is ignored; Source is the truth.
type FileFlavor struct {
	// Source is the local file or directory holding the model.
	Source string
}

func (FileFlavor) Name() string { return "file" }

func (f FileFlavor) Save(_ any, dir string, info *ModelInfo) error {
	if f.Source == "" {
		return fmt.Errorf("file flavor requires a source path")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	src, err := os.Stat(f.Source)
	if err != nil {
		return fmt.Errorf("failed to stat model source: %w", err)
	}

	base := filepath.Base(f.Source)
	dest := filepath.Join(dir, base)
	if src.IsDir() {
		err = copyTree(f.Source, dest)
	} else {
		err = copyFile(f.Source, dest)
	}
	if err != nil {
		return fmt.Errorf("failed to stage model from %s: %w", f.Source, err)
	}

	info.AddFlavor(f.Name(), map[string]any{
		"source": base,
	})
	return info.WriteMLmodel(dir)
}

func copyTree(srcDir, destDir string) error {
	return filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(p, target)
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
