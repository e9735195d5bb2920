package scheduler

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPTarget identifies a remote drop location
type SFTPTarget struct {
	Host      string
	Port      int
	Username  string
	Password  string
	RemoteDir string
}

// SFTPClient uploads artifacts to a remote host
type SFTPClient interface {
	Upload(ctx context.Context, target SFTPTarget, fileName string, data []byte) error
}

// SSHSFTPClient uploads over SSH, dialing per delivery
type SSHSFTPClient struct {
	dialTimeout time.Duration
}

// NewSFTPClient creates the default SFTP client
func NewSFTPClient() *SSHSFTPClient {
	return &SSHSFTPClient{dialTimeout: 15 * time.Second}
}

func (c *SSHSFTPClient) Upload(_ context.Context, target SFTPTarget, fileName string, data []byte) error {
	addr := fmt.Sprintf("%s:%d", target.Host, target.Port)
	sshConfig := &ssh.ClientConfig{
		User:            target.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(target.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.dialTimeout,
	}

	conn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return fmt.Errorf("ssh dial %s failed: %w", addr, err)
	}
	defer conn.Close()

	client, err := sftp.NewClient(conn)
	if err != nil {
		return fmt.Errorf("sftp session failed: %w", err)
	}
	defer client.Close()

	remotePath := fileName
	if target.RemoteDir != "" {
		if err := client.MkdirAll(target.RemoteDir); err != nil {
			return fmt.Errorf("failed to create remote directory: %w", err)
		}
		remotePath = path.Join(target.RemoteDir, fileName)
	}

	f, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write remote file: %w", err)
	}
	return nil
}
