// Package crypto wraps the gpg and exiftool binaries for artifact
// protection. Inputs leaving the host are stripped of embedded metadata and
// encrypted to a recipient key; finished artifacts are decrypted and get
// their original metadata restored.
package crypto

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// GPG runs encryption, decryption, and metadata operations through the
// host's gpg and exiftool binaries.
type GPG struct {
	gpgPath      string
	exiftoolPath string
	sanitize     bool
	logger       *slog.Logger
}

// NewGPG creates the crypto layer. When sanitize is true and exiftoolPath is
// set, embedded metadata is stripped before encryption.
func NewGPG(gpgPath, exiftoolPath string, sanitize bool, logger *slog.Logger) *GPG {
	if logger == nil {
		logger = slog.Default()
	}
	return &GPG{
		gpgPath:      gpgPath,
		exiftoolPath: exiftoolPath,
		sanitize:     sanitize,
		logger:       logger,
	}
}

// Encrypt encrypts inputPath to outputPath for the given recipient key. With
// sanitization enabled the plaintext never touches disk between the strip
// and the encrypt: exiftool streams the stripped file straight into gpg.
func (g *GPG) Encrypt(ctx context.Context, inputPath, outputPath, recipient string) error {
	if recipient == "" {
		return fmt.Errorf("encrypt: no recipient key")
	}

	if g.sanitize && g.exiftoolPath != "" {
		return g.sanitizeAndEncrypt(ctx, inputPath, outputPath, recipient)
	}

	args := append(g.encryptArgs(outputPath, recipient), inputPath)
	return g.run(ctx, g.gpgPath, args, nil)
}

func (g *GPG) sanitizeAndEncrypt(ctx context.Context, inputPath, outputPath, recipient string) error {
	strip := exec.CommandContext(ctx, g.exiftoolPath, "-all=", "-o", "-", inputPath)
	encrypt := exec.CommandContext(ctx, g.gpgPath, append(g.encryptArgs(outputPath, recipient), "-")...)

	pipe, err := strip.StdoutPipe()
	if err != nil {
		return fmt.Errorf("sanitize pipe: %w", err)
	}
	encrypt.Stdin = pipe

	var stripErr, encryptErr bytes.Buffer
	strip.Stderr = &stripErr
	encrypt.Stderr = &encryptErr

	if err := strip.Start(); err != nil {
		return fmt.Errorf("starting exiftool: %w", err)
	}
	if err := encrypt.Start(); err != nil {
		strip.Process.Kill()
		strip.Wait()
		return fmt.Errorf("starting gpg: %w", err)
	}

	encErr := encrypt.Wait()
	sErr := strip.Wait()

	if sErr != nil {
		return fmt.Errorf("sanitizing metadata: %w: %s", sErr, firstLine(stripErr.String()))
	}
	if encErr != nil {
		return fmt.Errorf("encrypting: %w: %s", encErr, firstLine(encryptErr.String()))
	}

	g.logger.Debug("sanitized and encrypted",
		slog.String("input", inputPath),
		slog.String("output", outputPath),
	)
	return nil
}

func (g *GPG) encryptArgs(outputPath, recipient string) []string {
	return []string{
		"--batch", "--yes",
		"--trust-model", "always",
		"--recipient", recipient,
		"--output", outputPath,
		"--encrypt",
	}
}

// Decrypt decrypts inputPath to outputPath using the local keyring.
func (g *GPG) Decrypt(ctx context.Context, inputPath, outputPath string) error {
	args := []string{
		"--batch", "--yes",
		"--output", outputPath,
		"--decrypt", inputPath,
	}
	return g.run(ctx, g.gpgPath, args, nil)
}

// RestoreMetadata copies the embedded metadata tags of originalPath onto
// targetPath in place. A restore failure leaves the target playable, so it
// is reported but recoverable by the caller.
func (g *GPG) RestoreMetadata(ctx context.Context, originalPath, targetPath string) error {
	if g.exiftoolPath == "" {
		return fmt.Errorf("restore metadata: exiftool not configured")
	}
	args := []string{
		"-overwrite_original",
		"-tagsfromfile", originalPath,
		targetPath,
	}
	return g.run(ctx, g.exiftoolPath, args, nil)
}

func (g *GPG) run(ctx context.Context, program string, args []string, stdin []byte) error {
	cmd := exec.CommandContext(ctx, program, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	g.logger.Debug("executing", slog.String("program", program))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", program, err, firstLine(stderr.String()))
	}
	return nil
}

// firstLine trims tool stderr down to its leading line for error messages.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
