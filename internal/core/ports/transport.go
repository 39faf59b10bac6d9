package ports

import "context"

// ConsignmentProxy exchanges consignment files with counterparties through a
// transport endpoint.
type ConsignmentProxy interface {
	PostConsignment(
		ctx context.Context, endpoint, recipientID, txid string, vout *uint32,
		consignment []byte,
	) error
}
