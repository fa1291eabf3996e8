package gateway

import "context"

func (d *Dispatcher) Login(ctx context.Context, username, password string) (string, error) {
	var token string
	err := d.do(ctx, "login", func(b Backend) error {
		var err error
		token, err = b.Login(ctx, username, password)
		return err
	})
	return token, err
}

func (d *Dispatcher) ListFiles(ctx context.Context) ([]string, error) {
	var names []string
	err := d.do(ctx, "list_files", func(b Backend) error {
		var err error
		names, err = b.ListFiles(ctx)
		return err
	})
	return names, err
}

func (d *Dispatcher) Upload(ctx context.Context, name string, data []byte) error {
	return d.do(ctx, "upload", func(b Backend) error {
		return b.Upload(ctx, name, data)
	})
}

func (d *Dispatcher) EditFile(ctx context.Context, name string, data []byte) error {
	return d.do(ctx, "edit_file", func(b Backend) error {
		return b.EditFile(ctx, name, data)
	})
}

func (d *Dispatcher) Download(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := d.do(ctx, "download", func(b Backend) error {
		var err error
		data, err = b.Download(ctx, name)
		return err
	})
	return data, err
}

func (d *Dispatcher) DeleteFile(ctx context.Context, name string) error {
	return d.do(ctx, "delete_file", func(b Backend) error {
		return b.DeleteFile(ctx, name)
	})
}

func (d *Dispatcher) CreateAccount(ctx context.Context, username, password string) error {
	return d.do(ctx, "create_account", func(b Backend) error {
		return b.CreateAccount(ctx, username, password)
	})
}

func (d *Dispatcher) GetSystemHash(ctx context.Context) (string, error) {
	var hash string
	err := d.do(ctx, "get_system_hash", func(b Backend) error {
		var err error
		hash, err = b.GetSystemHash(ctx)
		return err
	})
	return hash, err
}

var _ Backend = (*Dispatcher)(nil)
