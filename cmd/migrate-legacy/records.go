package main

import (
	"github.com/EmpoweredVote/EV-Dashboard/internal/legacy"
	"github.com/rs/zerolog/log"
)

// selectRecords keeps the first valid record for each username, in file
// order. Later records with the same username are dropped even when their
// hash differs.
func selectRecords(records []legacy.Record) (keep []legacy.Record, skipped, duplicates int) {
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if !rec.Valid() {
			skipped++
			log.Warn().Str("username", rec.Username).Msg("Skipping legacy record without username or password hash")
			continue
		}
		if _, ok := seen[rec.Username]; ok {
			duplicates++
			log.Warn().Str("username", rec.Username).Msg("Skipping duplicate legacy record")
			continue
		}
		seen[rec.Username] = struct{}{}
		keep = append(keep, rec)
	}
	return keep, skipped, duplicates
}
