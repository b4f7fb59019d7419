package recorder

import "time"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordKick(_ *KickEvent) error                 { return nil }
func (n *NoopRecorder) RecordTake(_ *TakeEvent) error                 { return nil }
func (n *NoopRecorder) RecordDisposal(_ *DisposalEvent) error         { return nil }
func (n *NoopRecorder) RecordLPCollect(_ *LPCollectEvent) error       { return nil }
func (n *NoopRecorder) RecordBondWithdraw(_ *BondWithdrawEvent) error { return nil }
func (n *NoopRecorder) CountSince(_ time.Time) (map[string]int, error) {
	return map[string]int{}, nil
}
func (n *NoopRecorder) Close() error { return nil }
