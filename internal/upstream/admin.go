package upstream

import (
	"context"
	"log/slog"

	"github.com/user/fleetdeck/internal/wire"
)

// GetOneTimeAuthToken response layout.
const oneTimeFieldToken = 1

// DeleteUserResult reports a remote account deletion.
type DeleteUserResult struct {
	CallMeta
	LocalRowDeleted bool `json:"local_row_deleted"`
}

// DeleteUser deletes the account upstream, then removes the local row and
// drops any cached token state. The local cleanup happens only after the
// upstream confirmed the deletion.
func (c *Client) DeleteUser(ctx context.Context, accountID string) (*DeleteUserResult, error) {
	acct, err := c.store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}

	res, err := c.invoke(ctx, epDeleteUser, accountID, func(token string) []byte {
		var b []byte
		b = wire.AppendString(b, 1, token)
		b = wire.AppendString(b, 3, acct.APIKey)
		return b
	})
	if err != nil {
		return nil, err
	}

	out := &DeleteUserResult{CallMeta: metaOf(res)}
	if err := c.store.DeleteAccount(accountID); err != nil {
		slog.Warn("local account cleanup failed after upstream delete", "account_id", accountID, "error", err)
	} else {
		out.LocalRowDeleted = true
	}
	c.tokens.Forget(accountID)
	return out, nil
}

// OneTimeToken is a short-lived token minted for browser hand-off.
type OneTimeToken struct {
	CallMeta
	Token string `json:"token,omitempty"`
}

// GetOneTimeAuthToken mints a single-use token the vendor's web properties
// accept for session bootstrap.
func (c *Client) GetOneTimeAuthToken(ctx context.Context, accountID string) (*OneTimeToken, error) {
	res, err := c.invoke(ctx, epGetOneTimeAuthToken, accountID, func(token string) []byte {
		return wire.AppendString(nil, 1, token)
	})
	if err != nil {
		return nil, err
	}

	out := &OneTimeToken{CallMeta: metaOf(res)}
	if res.Msg != nil {
		if v, ok := res.Msg.String(oneTimeFieldToken); ok {
			out.Token = v
		}
	}
	return out, nil
}
