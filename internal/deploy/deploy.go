// Package deploy pushes a mirror tree to a self-hosted server over SSH.
// The tree is streamed as a tar archive into `tar -x` on the remote side,
// so the only remote requirements are an SSH login and tar.
package deploy

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/lvillar/webmirror/internal/config"
)

// Client wraps an authenticated SSH connection to the deploy target.
type Client struct {
	client *ssh.Client
	host   string
}

// Dial connects to the configured deploy host with key or password auth.
func Dial(cfg *config.Config) (*Client, error) {
	if cfg.DeployHost == "" {
		return nil, fmt.Errorf("deploy: deploy_host is not configured")
	}

	var authMethods []ssh.AuthMethod
	if cfg.DeployKeyPath != "" {
		if keyPEM, err := os.ReadFile(expandHome(cfg.DeployKeyPath)); err == nil {
			signer, err := ssh.ParsePrivateKey(keyPEM)
			if err != nil {
				return nil, fmt.Errorf("parsing SSH key: %w", err)
			}
			authMethods = append(authMethods, ssh.PublicKeys(signer))
		}
	}
	if cfg.DeployPassword != "" {
		authMethods = append(authMethods, ssh.Password(cfg.DeployPassword))
	}
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("deploy: no usable SSH auth (key unreadable, no password)")
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.DeployUser,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: known_hosts support
		Timeout:         15 * time.Second,
	}

	addr := cfg.DeployHost
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}
	client, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", addr, err)
	}
	return &Client{client: client, host: cfg.DeployHost}, nil
}

// Close shuts down the SSH connection.
func (c *Client) Close() error { return c.client.Close() }

// Run executes a command and returns combined stdout+stderr.
func (c *Client) Run(cmd string) (string, error) {
	sess, err := c.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("new session: %w", err)
	}
	defer sess.Close()

	out, err := sess.CombinedOutput(cmd)
	return string(out), err
}

// Push uploads the tree at localDir into remoteDir. The remote directory is
// created first; existing files are overwritten, extra remote files are
// left alone.
func (c *Client) Push(localDir, remoteDir string) error {
	if remoteDir == "" || remoteDir == "/" {
		return fmt.Errorf("deploy: refusing remote dir %q", remoteDir)
	}

	if out, err := c.Run(fmt.Sprintf("mkdir -p %s", shellQuote(remoteDir))); err != nil {
		return fmt.Errorf("creating %s on %s: %v — %s", remoteDir, c.host, err, out)
	}

	sess, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}
	defer sess.Close()

	stdin, err := sess.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	cmd := fmt.Sprintf("tar -x -C %s", shellQuote(remoteDir))
	if err := sess.Start(cmd); err != nil {
		return fmt.Errorf("starting remote tar: %w", err)
	}

	count, bytes, tarErr := writeTar(stdin, localDir)
	stdin.Close()

	if err := sess.Wait(); err != nil {
		return fmt.Errorf("remote tar on %s: %w", c.host, err)
	}
	if tarErr != nil {
		return tarErr
	}

	logrus.WithFields(logrus.Fields{
		"host": c.host, "dir": remoteDir, "files": count, "bytes": bytes,
	}).Info("deploy finished")
	return nil
}

// List returns the files that Push would upload, for --dry-run.
func List(localDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}

// writeTar streams every regular file under root into w.
func writeTar(w io.Writer, root string) (files int, total int64, err error) {
	tw := tar.NewWriter(w)

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		hdr := &tar.Header{
			Name:    filepath.ToSlash(rel),
			Mode:    0o644,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		n, err := io.Copy(tw, f)
		f.Close()
		if err != nil {
			return err
		}
		files++
		total += n
		return nil
	})
	if err != nil {
		tw.Close()
		return files, total, fmt.Errorf("building tar stream: %w", err)
	}
	return files, total, tw.Close()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
