package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailored-agentic-units/relay/messaging"
)

// FileDrop delivers messages by writing their persisted record to
// <root>/<recipient>/<id>.json. The write goes through a temporary file and a
// rename so readers never observe a partial record.
type FileDrop struct {
	root string

	// RequireInbox makes a missing recipient directory a permanent failure
	// instead of creating it.
	RequireInbox bool
}

func NewFileDrop(root string) *FileDrop {
	return &FileDrop{root: root}
}

func (f *FileDrop) Deliver(ctx context.Context, msg *messaging.Message) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	if f.root == "" {
		return false, ErrNoDestination
	}

	inbox, err := f.inbox(msg.To)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(inbox); err != nil {
		if !os.IsNotExist(err) {
			return false, fmt.Errorf("%w: %s: %v", ErrSendFailed, msg.To, err)
		}
		if f.RequireInbox {
			return false, fmt.Errorf("%w: %s", ErrDestinationUnresolved, msg.To)
		}
		if err := os.MkdirAll(inbox, 0o755); err != nil {
			return false, fmt.Errorf("%w: %s: %v", ErrSendFailed, msg.To, err)
		}
	}

	data, err := messaging.EncodeRecord(msg)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	path := filepath.Join(inbox, msg.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrSendFailed, msg.To, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("%w: %s: %v", ErrSendFailed, msg.To, err)
	}

	return true, nil
}

func (f *FileDrop) inbox(recipient string) (string, error) {
	if recipient == "" || strings.ContainsAny(recipient, `/\`) || recipient == "." || recipient == ".." {
		return "", fmt.Errorf("%w: invalid recipient %q", ErrDestinationUnresolved, recipient)
	}
	return filepath.Join(f.root, recipient), nil
}
