package node

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-filestore/pkg/accounts"
	"github.com/dd0wney/cluso-filestore/pkg/rpc"
	"github.com/dd0wney/cluso-filestore/pkg/storage"
	"github.com/dd0wney/cluso-filestore/pkg/validation"
)

var _ rpc.Service = (*Node)(nil)

func (n *Node) Login(ctx context.Context, username, password string) (string, error) {
	return n.auth.Login(ctx, username, password)
}

func (n *Node) ListFiles(ctx context.Context) ([]string, error) {
	return n.catalog.List(), nil
}

func (n *Node) Upload(ctx context.Context, name string, data []byte) error {
	if err := checkFile(name, data); err != nil {
		return err
	}
	return n.replication.Upload(ctx, name, data)
}

func (n *Node) EditFile(ctx context.Context, name string, data []byte) error {
	if err := checkFile(name, data); err != nil {
		return err
	}
	return n.replication.Edit(ctx, name, data)
}

// checkFile rejects bad names before any lock is taken.
func checkFile(name string, data []byte) error {
	if err := validation.ValidateFile(&validation.FileRequest{Name: name, Content: data}); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidName, err)
	}
	return nil
}

func (n *Node) Download(ctx context.Context, name string) ([]byte, error) {
	return n.catalog.Read(ctx, name)
}

func (n *Node) DeleteFile(ctx context.Context, name string) error {
	return n.replication.Delete(ctx, name)
}

// CreateAccount validates the credentials, hashes the password with the
// configured scheme and replicates the account to every member.
func (n *Node) CreateAccount(ctx context.Context, username, password string) error {
	req := validation.CredentialsRequest{Username: username, Password: password}
	if err := validation.ValidateCredentials(&req); err != nil {
		return err
	}
	stored, err := n.scheme.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return n.txn.CreateAccount(ctx, accounts.Account{Username: username, Password: stored})
}

func (n *Node) GetSystemHash(ctx context.Context) (string, error) {
	return n.catalog.SystemHash(ctx)
}

// Health reports this node's view of the cluster.
func (n *Node) Health(ctx context.Context) rpc.Health {
	v := n.tracker.View()
	status := "ok"
	select {
	case <-n.ready:
	default:
		status = "starting"
	}
	members := make([]string, 0, len(v.Members))
	for _, m := range v.Members {
		members = append(members, m.ID)
	}
	return rpc.Health{
		Status:  status,
		ID:      n.tracker.Self().ID,
		Role:    "node",
		Leader:  n.tracker.IsLeader(),
		ViewID:  v.ID,
		Members: members,
		Files:   len(n.catalog.List()),
	}
}
