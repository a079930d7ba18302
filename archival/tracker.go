package archival

import (
	"chaindrive/cid"
	"chaindrive/datamodel/ledger"
	"chaindrive/metrics"
)

// Tracker records external confirmation results per node CID, latest write
// wins by arrival order. It makes no attempt to rank results; whatever the
// feed reported last is the truth.
type Tracker struct {
	results ledger.TransactionResults
}

func NewTracker(results ledger.TransactionResults) *Tracker {
	return &Tracker{results: results}
}

func (t *Tracker) SetResult(res *ledger.TransactionResult) error {
	if err := t.results.Set(res); err != nil {
		return err
	}
	metrics.TxResultsApplied.Inc()
	return nil
}

func (t *Tracker) GetResult(c *cid.Cid) (*ledger.TransactionResult, error) {
	return t.results.Get(c)
}
