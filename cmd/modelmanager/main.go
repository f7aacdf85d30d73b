// Command modelmanager downloads, lists, and deletes the embedding models
// used by internal/embed's invocable-black-box embedder, grounded on
// original_source/download_scripts/model_manager.rs: same three operations
// and default download directory, ported from a shelled-out `curl` call to
// net/http per idiomatic Go.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const defaultModelDownloadPath = "./models"

const huggingFaceResolveURLTemplate = "https://huggingface.co/%s/resolve/main/pytorch_model.bin"

func main() {
	logger := logrus.New()

	modelDir := flag.String("model-dir", defaultModelDownloadPath, "directory models are downloaded into and listed from")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: modelmanager <download <model>|list|delete <model>>")
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "download":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: modelmanager download <model>")
			os.Exit(2)
		}
		err = downloadModel(logger, *modelDir, args[1])
	case "list":
		err = listModels(logger, *modelDir)
	case "delete":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: modelmanager delete <model>")
			os.Exit(2)
		}
		err = deleteModel(logger, *modelDir, args[1])
	default:
		fmt.Fprintf(os.Stderr, "modelmanager: unknown subcommand %q\n", args[0])
		os.Exit(2)
	}

	if err != nil {
		logger.WithError(err).Error("modelmanager: operation failed")
		os.Exit(1)
	}
}

func downloadModel(logger *logrus.Logger, modelDir, modelName string) error {
	modelPath := filepath.Join(modelDir, modelName)
	if _, err := os.Stat(modelPath); err == nil {
		logger.WithField("model", modelName).Info("model already exists")
		return nil
	}

	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return fmt.Errorf("modelmanager: create model directory: %w", err)
	}

	url := fmt.Sprintf(huggingFaceResolveURLTemplate, modelName)
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("modelmanager: download model %q: %w", modelName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("modelmanager: download model %q: server returned %s", modelName, resp.Status)
	}

	tmpPath := modelPath + ".download"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("modelmanager: create model file: %w", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("modelmanager: write model file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("modelmanager: close model file: %w", err)
	}

	if err := os.Rename(tmpPath, modelPath); err != nil {
		return fmt.Errorf("modelmanager: finalize model file: %w", err)
	}

	logger.WithField("model", modelName).Info("model downloaded successfully")
	return nil
}

func listModels(logger *logrus.Logger, modelDir string) error {
	entries, err := os.ReadDir(modelDir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("no models available")
			return nil
		}
		return fmt.Errorf("modelmanager: list models: %w", err)
	}

	if len(entries) == 0 {
		logger.Info("no models available")
		return nil
	}

	for _, entry := range entries {
		logger.WithField("model", entry.Name()).Info("model")
	}
	return nil
}

func deleteModel(logger *logrus.Logger, modelDir, modelName string) error {
	modelPath := filepath.Join(modelDir, modelName)
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		logger.WithField("model", modelName).Info("model not found")
		return nil
	}

	if err := os.Remove(modelPath); err != nil {
		return fmt.Errorf("modelmanager: delete model %q: %w", modelName, err)
	}

	logger.WithField("model", modelName).Info("model deleted successfully")
	return nil
}
