package hunt

import (
	"fmt"

	"hunterlog/store"
)

// Purpose: Persist QSOs read from an external ADIF log.
// Key aspects: Each record is inserted and counts as one hunt of its park;
// parks created here have no name until the next catch-up. A failing record
// is logged and skipped. Nothing is emitted to the ADIF sink.
// Upstream: import-adif command.
// Downstream: PipelineStore.InsertQSO, PipelineStore.IncParkHunt.
func (p *Pipeline) ImportQSOs(qsos []store.QSO) Result {
	imported, failedCount := 0, 0
	for _, q := range qsos {
		if _, err := p.store.InsertQSO(q); err != nil {
			p.logf("hunt: import qso %s@%s: %v", q.Call, q.SigInfo, err)
			failedCount++
			continue
		}
		if err := p.store.IncParkHunt(q.SigInfo, nil); err != nil {
			p.logf("hunt: import hunt for %s: %v", q.SigInfo, err)
		}
		imported++
	}
	res := Result{
		Success: failedCount == 0,
		Message: fmt.Sprintf("imported %d qsos", imported),
		Count:   imported,
	}
	if failedCount > 0 {
		res.Message += fmt.Sprintf(" (%d failed)", failedCount)
	}
	return res
}
