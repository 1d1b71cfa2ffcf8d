package store

import (
	"fmt"
	"sort"
	"strings"
)

// rrfK is the standard reciprocal-rank-fusion constant.
const rrfK = 60.0

// HybridResult is one ranked match from HybridSearch.
type HybridResult struct {
	Entry   Entry
	Score   float64
	FTSRank int // 1-based, 0 when absent from the FTS ranking
	VecRank int // 1-based, 0 when absent from the vector ranking
}

// SearchEntries runs a plain full-text search over titles and content.
func (s *Store) SearchEntries(query string, limit int, includeArchived bool) ([]Entry, error) {
	ranked, err := s.ftsSearch(query, limit, includeArchived)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(ranked))
	for _, id := range ranked {
		e, err := s.GetEntry(id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

// HybridSearch combines FTS and embedding similarity with reciprocal rank
// fusion. queryEmbedding may be nil, degrading to FTS-only ranking.
func (s *Store) HybridSearch(query string, queryEmbedding []float32, limit int, includeArchived bool) ([]HybridResult, error) {
	if limit <= 0 {
		limit = 5
	}

	ftsIDs, err := s.ftsSearch(query, limit*2, includeArchived)
	if err != nil {
		return nil, err
	}

	var vecIDs []string
	if len(queryEmbedding) > 0 {
		vecIDs, err = s.vectorSearch(queryEmbedding, limit*2, includeArchived)
		if err != nil {
			return nil, err
		}
	}

	type fused struct {
		score            float64
		ftsRank, vecRank int
	}
	scores := make(map[string]*fused)
	for i, id := range ftsIDs {
		scores[id] = &fused{score: 1 / (rrfK + float64(i+1)), ftsRank: i + 1}
	}
	for i, id := range vecIDs {
		f, ok := scores[id]
		if !ok {
			f = &fused{}
			scores[id] = f
		}
		f.score += 1 / (rrfK + float64(i+1))
		f.vecRank = i + 1
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]].score != scores[ids[j]].score {
			return scores[ids[i]].score > scores[ids[j]].score
		}
		return ids[i] < ids[j]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}

	results := make([]HybridResult, 0, len(ids))
	for _, id := range ids {
		e, err := s.GetEntry(id)
		if err != nil {
			return nil, fmt.Errorf("hybrid search: %w", err)
		}
		f := scores[id]
		results = append(results, HybridResult{
			Entry:   *e,
			Score:   f.score,
			FTSRank: f.ftsRank,
			VecRank: f.vecRank,
		})
	}
	return results, nil
}

// ftsSearch returns entry ids ordered by bm25 rank.
func (s *Store) ftsSearch(query string, limit int, includeArchived bool) ([]string, error) {
	match := escapeFTSQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	sql := `SELECT j.id
		FROM journals_fts fts
		JOIN journals j ON j.rowid = fts.rowid
		WHERE journals_fts MATCH ?`
	if !includeArchived {
		sql += ` AND j.is_archived = 0`
	}
	sql += ` ORDER BY bm25(journals_fts) LIMIT ?`

	rows, err := s.db.Query(sql, match, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan fts result: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// vectorSearch ranks entries by cosine similarity against every stored
// embedding. The library is single-user sized; a scan is fine.
func (s *Store) vectorSearch(queryEmbedding []float32, limit int, includeArchived bool) ([]string, error) {
	sql := `SELECT e.journal_id, e.embedding
		FROM journal_embeddings e
		JOIN journals j ON j.id = e.journal_id`
	if !includeArchived {
		sql += ` WHERE j.is_archived = 0`
	}

	rows, err := s.db.Query(sql)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	type scored struct {
		id    string
		score float64
	}
	var matches []scored
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			// Corrupt blob: skip the row rather than failing the search.
			continue
		}
		score, err := CosineSimilarity(queryEmbedding, vec)
		if err != nil {
			continue
		}
		matches = append(matches, scored{id: id, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > limit && limit > 0 {
		matches = matches[:limit]
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.id
	}
	return ids, nil
}

// escapeFTSQuery quotes each term and adds prefix matching, so user input
// can never inject FTS5 query syntax.
func escapeFTSQuery(query string) string {
	words := strings.Fields(strings.ReplaceAll(query, `"`, `""`))
	if len(words) == 0 {
		return ""
	}
	terms := make([]string, len(words))
	for i, w := range words {
		terms[i] = `"` + w + `"*`
	}
	return strings.Join(terms, " ")
}
