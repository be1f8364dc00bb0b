//go:build onnx

package embedding

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"
)

const (
	modelFileName      = "all-MiniLM-L6-v2.onnx"
	modelURL           = "https://huggingface.co/sentence-transformers/all-MiniLM-L6-v2/resolve/main/onnx/model.onnx"
	onnxRuntimeVersion = "1.17.1"

	// runtimeLibEnv overrides the ONNX Runtime shared library lookup.
	runtimeLibEnv = "VOXCHECK_ONNX_RUNTIME_LIB"
)

// runtimeArchive is the release archive platform suffix per GOOS/GOARCH.
var runtimeArchive = map[string]string{
	"darwin/arm64":  "osx-arm64",
	"darwin/amd64":  "osx-x86_64",
	"linux/amd64":   "linux-x64",
	"linux/arm64":   "linux-aarch64",
	"windows/amd64": "win-x64",
}

// downloadClient bounds model downloads; the MiniLM model is ~90 MB.
var downloadClient = &http.Client{Timeout: 10 * time.Minute}

func defaultModelDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".voxcheck", "models")
}

func runtimeLibName(goos string) string {
	switch goos {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

func runtimeDownloadURL(goos, goarch string) (string, bool) {
	platform, ok := runtimeArchive[goos+"/"+goarch]
	if !ok {
		return "", false
	}
	ext := ".tgz"
	if goos == "windows" {
		ext = ".zip"
	}
	return fmt.Sprintf("https://github.com/microsoft/onnxruntime/releases/download/v%[1]s/onnxruntime-%[2]s-%[1]s%[3]s",
		onnxRuntimeVersion, platform, ext), true
}

// findRuntime locates the ONNX Runtime shared library: the override variable
// when set, otherwise modelDir and then the usual system library paths.
// The runtime is never downloaded automatically.
func findRuntime(modelDir string) (string, error) {
	if p := os.Getenv(runtimeLibEnv); p != "" {
		if !fileExists(p) {
			return "", fmt.Errorf("onnx runtime: %s=%s does not exist", runtimeLibEnv, p)
		}
		return p, nil
	}

	lib := runtimeLibName(runtime.GOOS)
	candidates := []string{
		filepath.Join(modelDir, lib),
		filepath.Join("/usr/local/lib", lib),
		filepath.Join("/usr/lib", lib),
		filepath.Join("/opt/homebrew/lib", lib),
	}
	if i := slices.IndexFunc(candidates, fileExists); i >= 0 {
		return candidates[i], nil
	}

	hint := "install ONNX Runtime and set " + runtimeLibEnv
	if url, ok := runtimeDownloadURL(runtime.GOOS, runtime.GOARCH); ok {
		hint = "extract " + url + " into " + modelDir
	}
	return "", fmt.Errorf("onnx runtime: %s not found; %s", lib, hint)
}

// ensureModel returns the MiniLM model path under modelDir, downloading the
// model on first use.
func ensureModel(modelDir string) (string, error) {
	path := filepath.Join(modelDir, modelFileName)
	if fileExists(path) {
		return path, nil
	}
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", fmt.Errorf("onnx model: %w", err)
	}
	if err := downloadFile(modelURL, path); err != nil {
		return "", fmt.Errorf("onnx model: %w", err)
	}
	return path, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// downloadFile streams url into a temp file beside dest and renames it into
// place, so an interrupted download never leaves a truncated model.
func downloadFile(url, dest string) (err error) {
	resp, err := downloadClient.Get(url) //nolint:gosec // URL is a constant
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: HTTP %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	switch {
	case err != nil:
		return fmt.Errorf("download %s: %w", url, err)
	case n == 0:
		return errors.New("download " + url + ": empty body")
	}
	return os.Rename(tmp.Name(), dest)
}
