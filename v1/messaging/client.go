// Package messaging is the boundary to the messaging network's consent API.
// The rest of the service only sees raw {address, permission} histories.
package messaging

import (
	"context"

	"github.com/xmtp/allow-list-management/v1/models"
	"github.com/xmtp/allow-list-management/v1/wallet"
)

// Client is a messaging client authorized for one wallet.
type Client interface {
	// Address is the wallet address the client acts for
	Address() string
	// FetchConsentRecords returns the raw consent history, oldest first
	FetchConsentRecords(ctx context.Context) ([]models.ConsentRecord, error)
	// SetPermission records an allow or deny decision for peer
	SetPermission(ctx context.Context, peer string, permission models.Permission) error
	// CurrentPermission returns the latest decision for peer, or unknown
	CurrentPermission(ctx context.Context, peer string) (models.Permission, error)
}

// PeerRecorder is implemented by clients that can note a newly seen peer
// before any decision about it has been made.
type PeerRecorder interface {
	// RecordPeer adds an unknown entry for a peer with no history and returns
	// the peer's current permission
	RecordPeer(ctx context.Context, peer string) (models.Permission, error)
}

// Connector creates clients for authorized wallets.
type Connector interface {
	Connect(ctx context.Context, signer wallet.Signer) (Client, error)
}
