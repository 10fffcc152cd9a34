// Package dockercompile is an illustrative default collab.Compiler: it
// shells out to the docker CLI to build a function's source inside a
// per-tier image, copying the source in and the resulting artifact out
// via `docker cp`, and logs the artifact's SHA-256 hash. It
// exists so the Tier Controller has a concrete, swappable compiler to
// exercise; any other collab.Compiler can replace it.
package dockercompile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/dxhq/dx/internal/collab"
	"github.com/dxhq/dx/internal/logging"
)

// images maps a compilation tier to the Docker image used to build it.
// All three compiled tiers use the same image and build command;
// Interpreter has no entry, so Compile rejects it with an error.
var images = map[collab.Tier]string{
	collab.TierBaseline:     "golang:1.24",
	collab.TierOptimizing:   "golang:1.24",
	collab.TierAotOptimized: "golang:1.24",
}

// Compiler shells out to docker to build a function's source.
type Compiler struct {
	tmpDir string
}

// New creates a Compiler using a private temp directory for build
// scratch space under os.TempDir().
func New() *Compiler {
	tmpDir := filepath.Join(os.TempDir(), "dx-compile")
	os.MkdirAll(tmpDir, 0755)
	return &Compiler{tmpDir: tmpDir}
}

// Compile builds req.Source inside the Docker image for req.Tier and
// returns the resulting artifact, logging its SHA-256 hash.
func (c *Compiler) Compile(ctx context.Context, req collab.CompileRequest) (collab.CompileResult, error) {
	image, ok := images[req.Tier]
	if !ok {
		return collab.CompileResult{}, fmt.Errorf("no compile image configured for tier %s", req.Tier)
	}

	workDir, err := os.MkdirTemp(c.tmpDir, fmt.Sprintf("compile-%s-", safeName(req.FunctionName)))
	if err != nil {
		return collab.CompileResult{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	srcPath := filepath.Join(workDir, "main.go")
	if err := os.WriteFile(srcPath, req.Source, 0644); err != nil {
		return collab.CompileResult{}, fmt.Errorf("write source: %w", err)
	}

	containerName := fmt.Sprintf("dx-compile-%s-%d", safeName(req.FunctionName), os.Getpid())
	buildCmd := "cd /work && go build -o artifact main.go"

	createCmd := exec.CommandContext(ctx, "docker", "create", "--network", "none", "--name", containerName, image, "sh", "-c", buildCmd)
	if out, err := createCmd.CombinedOutput(); err != nil {
		return collab.CompileResult{}, fmt.Errorf("docker create: %w: %s", err, out)
	}
	defer exec.Command("docker", "rm", "-f", containerName).Run()

	cpIn := exec.CommandContext(ctx, "docker", "cp", workDir+"/.", containerName+":/work/")
	if out, err := cpIn.CombinedOutput(); err != nil {
		return collab.CompileResult{}, fmt.Errorf("docker cp in: %w: %s", err, out)
	}

	start := exec.CommandContext(ctx, "docker", "start", "-a", containerName)
	if out, err := start.CombinedOutput(); err != nil {
		logging.Op().Error("compilation failed", "function", req.FunctionName, "tier", req.Tier, "error", err, "output", string(out))
		return collab.CompileResult{}, fmt.Errorf("compile %q: %w", req.FunctionName, err)
	}

	artifactDir := filepath.Join(workDir, "out")
	os.MkdirAll(artifactDir, 0755)
	cpOut := exec.CommandContext(ctx, "docker", "cp", containerName+":/work/artifact", filepath.Join(artifactDir, "artifact"))
	if out, err := cpOut.CombinedOutput(); err != nil {
		return collab.CompileResult{}, fmt.Errorf("docker cp out: %w: %s", err, out)
	}

	artifact, err := os.ReadFile(filepath.Join(artifactDir, "artifact"))
	if err != nil {
		return collab.CompileResult{}, fmt.Errorf("read artifact: %w", err)
	}

	logging.Op().Info("compilation succeeded", "function", req.FunctionName, "tier", req.Tier, "hash", hashBytes(artifact), "size", len(artifact))
	return collab.CompileResult{Artifact: artifact}, nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func safeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			out = append(out, r)
			continue
		}
		out = append(out, '_')
	}
	if len(out) == 0 {
		return "fn"
	}
	return string(out)
}
