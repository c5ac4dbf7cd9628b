package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"codeatlas/internal/extractor"
	"codeatlas/internal/graph"
	"codeatlas/internal/knowledge"

	_ "github.com/mattn/go-sqlite3"
)

// graphContentLimit bounds node content persisted to the graph tables; full
// content lives with the embedding records.
const graphContentLimit = 1000

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS repos (
			name TEXT PRIMARY KEY,
			commit_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			repo_name TEXT NOT NULL,
			kind TEXT NOT NULL,
			name TEXT,
			filepath TEXT,
			content TEXT,
			start_line INTEGER,
			end_line INTEGER,
			params JSON,
			meta JSON,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS edges (
			from_id TEXT NOT NULL,
			to_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			PRIMARY KEY (from_id, to_id, kind)
		);`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			id TEXT PRIMARY KEY,
			repo_name TEXT NOT NULL,
			commit_hash TEXT NOT NULL,
			filepath TEXT,
			kind TEXT,
			name TEXT,
			content TEXT,
			start_line INTEGER,
			end_line INTEGER,
			embedding BLOB,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(filepath);`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(kind, name);`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_repo ON embeddings(repo_name, commit_hash);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// --- GraphStore ---

func repoNodeID(repoName string) string {
	return "repo:" + repoName
}

// StoreAST writes the repository node, then files, functions, classes and
// imports in that order so every containment edge finds its parent present,
// then the containment and relationship edges. One transaction; repeated
// runs converge to the same state.
func (s *SQLiteStore) StoreAST(ctx context.Context, nodes []*extractor.CodeNode, repoName, commitHash string) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO repos (name, commit_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			commit_hash=excluded.commit_hash,
			updated_at=excluded.updated_at
	`, repoName, commitHash, now, now); err != nil {
		return fmt.Errorf("failed to upsert repository %s: %w", repoName, err)
	}

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (id, repo_name, kind, name, filepath, content, start_line, end_line, params, meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content=excluded.content,
			updated_at=excluded.updated_at
	`)
	if err != nil {
		return err
	}
	defer nodeStmt.Close()

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (from_id, to_id, kind) VALUES (?, ?, ?)
		ON CONFLICT(from_id, to_id, kind) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer edgeStmt.Close()

	writeNode := func(n *extractor.CodeNode) error {
		content := n.Content
		if len(content) > graphContentLimit {
			content = content[:graphContentLimit]
		}
		params, _ := json.Marshal(n.Params)
		meta, _ := json.Marshal(n.Metadata)
		_, err := nodeStmt.ExecContext(ctx, n.ID, repoName, string(n.Kind), n.Name, n.Filepath,
			content, n.StartLine, n.EndLine, params, meta, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert node %s: %w", n.ID, err)
		}
		return nil
	}

	// Export nodes are embedded but carry no graph relationships, so they
	// stay out of the graph tables.
	order := []extractor.NodeKind{extractor.KindFile, extractor.KindFunction, extractor.KindClass, extractor.KindImport}
	byKind := make(map[extractor.NodeKind][]*extractor.CodeNode)
	for _, n := range nodes {
		byKind[n.Kind] = append(byKind[n.Kind], n)
	}

	for _, kind := range order {
		for _, n := range byKind[kind] {
			if err := writeNode(n); err != nil {
				return err
			}

			var from string
			var edgeKind graph.EdgeKind
			switch kind {
			case extractor.KindFile:
				from, edgeKind = repoNodeID(repoName), graph.EdgeContains
			case extractor.KindFunction, extractor.KindClass:
				from, edgeKind = n.Filepath, graph.EdgeContains
			case extractor.KindImport:
				from, edgeKind = n.Filepath, graph.EdgeImports
			}
			if _, err := edgeStmt.ExecContext(ctx, from, n.ID, string(edgeKind)); err != nil {
				return fmt.Errorf("failed to link %s: %w", n.ID, err)
			}
		}
	}

	for _, e := range graph.Build(nodes).Link() {
		if _, err := edgeStmt.ExecContext(ctx, e.From, e.To, string(e.Kind)); err != nil {
			return fmt.Errorf("failed to store edge %s->%s: %w", e.From, e.To, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Relationships(ctx context.Context, ids []string, max int) ([]Triple, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if max <= 0 {
		max = 50
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, max)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT a.name, a.filepath, e.kind, b.name, b.filepath
		FROM edges e
		JOIN nodes a ON a.id = e.from_id
		JOIN nodes b ON b.id = e.to_id
		WHERE e.from_id IN (%s)
		LIMIT ?
	`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triples []Triple
	for rows.Next() {
		var t Triple
		if err := rows.Scan(&t.From.Name, &t.From.Filepath, &t.Relation, &t.To.Name, &t.To.Filepath); err != nil {
			return nil, err
		}
		triples = append(triples, t)
	}
	return triples, rows.Err()
}

func (s *SQLiteStore) RepoCommit(ctx context.Context, repoName string) (string, error) {
	var commit string
	err := s.db.QueryRowContext(ctx, `SELECT commit_hash FROM repos WHERE name = ?`, repoName).Scan(&commit)
	if err != nil {
		return "", err
	}
	return commit, nil
}

func (s *SQLiteStore) FunctionCallers(ctx context.Context, repoName, name string) ([]CallerRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.name, a.filepath, a.start_line
		FROM edges e
		JOIN nodes a ON a.id = e.from_id
		JOIN nodes b ON b.id = e.to_id
		WHERE e.kind = ? AND b.kind = 'function' AND b.name = ? AND b.repo_name = ?
	`, string(graph.EdgeCalls), name, repoName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var callers []CallerRef
	for rows.Next() {
		var c CallerRef
		if err := rows.Scan(&c.Name, &c.Filepath, &c.StartLine); err != nil {
			return nil, err
		}
		callers = append(callers, c)
	}
	return callers, rows.Err()
}

func (s *SQLiteStore) ImportUsage(ctx context.Context, repoName, module string) ([]ImportRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.filepath, i.name, i.meta
		FROM edges e
		JOIN nodes f ON f.id = e.from_id
		JOIN nodes i ON i.id = e.to_id
		WHERE e.kind = ? AND i.name LIKE ? AND i.repo_name = ?
	`, string(graph.EdgeImports), "%"+module+"%", repoName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []ImportRef
	for rows.Next() {
		var ref ImportRef
		var meta []byte
		if err := rows.Scan(&ref.Filepath, &ref.Source, &meta); err != nil {
			return nil, err
		}
		var m extractor.Metadata
		if json.Unmarshal(meta, &m) == nil && m.Import != nil {
			ref.Specifiers = m.Import.Specifiers
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// --- VectorStore ---

func (s *SQLiteStore) SaveEmbeddings(ctx context.Context, records []knowledge.Record) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (id, repo_name, commit_hash, filepath, kind, name, content, start_line, end_line, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			embedding=excluded.embedding,
			commit_hash=excluded.commit_hash,
			content=excluded.content,
			updated_at=excluded.updated_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		blob, err := encodeVector(r.Embedding)
		if err != nil {
			log.Printf("failed to encode embedding for %s: %v", r.ID, err)
			continue
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.RepoName, r.CommitHash, r.Filepath, string(r.Kind),
			r.Name, r.Content, r.StartLine, r.EndLine, blob, now, now); err != nil {
			// One bad record must not sink the batch.
			log.Printf("failed to store embedding for %s: %v", r.ID, err)
		}
	}

	return tx.Commit()
}

// SearchSimilar ranks embeddings in memory by cosine similarity. The scan is
// scoped to the repository's current commit when a repos row exists, so
// stale rows from superseded commits never surface.
func (s *SQLiteStore) SearchSimilar(ctx context.Context, vector []float32, repoName string, limit int, minSimilarity float64) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filepath, kind, name, content, start_line, end_line, embedding
		FROM embeddings
		WHERE repo_name = ?1
		  AND commit_hash = COALESCE((SELECT commit_hash FROM repos WHERE name = ?1), commit_hash)
	`, repoName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks, err := rankRows(rows, vector, "", minSimilarity)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

func (s *SQLiteStore) SimilarFunctions(ctx context.Context, repoName, functionName string, limit int) ([]Chunk, error) {
	var seedID string
	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, embedding FROM embeddings
		WHERE repo_name = ? AND kind = 'function' AND name = ?
		LIMIT 1
	`, repoName, functionName).Scan(&seedID, &blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	seed, err := decodeVector(blob)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filepath, kind, name, content, start_line, end_line, embedding
		FROM embeddings
		WHERE repo_name = ? AND kind = 'function'
	`, repoName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks, err := rankRows(rows, seed, seedID, -1)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

func (s *SQLiteStore) CodeByFilepath(ctx context.Context, repoName, path string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filepath, kind, name, content, start_line, end_line
		FROM embeddings
		WHERE repo_name = ? AND filepath = ?
		ORDER BY start_line
	`, repoName, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteStore) SearchPattern(ctx context.Context, repoName, pattern string, kind extractor.NodeKind) ([]Chunk, error) {
	query := `
		SELECT id, filepath, kind, name, content, start_line, end_line
		FROM embeddings
		WHERE repo_name = ? AND content LIKE ?
	`
	args := []any{repoName, "%" + pattern + "%"}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` LIMIT 20`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteStore) ClearStaleEmbeddings(ctx context.Context, repoName, currentCommit string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM embeddings WHERE repo_name = ? AND commit_hash != ?
	`, repoName, currentCommit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Counts reports stored row totals.
func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	row := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM nodes),
		       (SELECT COUNT(*) FROM edges),
		       (SELECT COUNT(*) FROM embeddings)
	`)
	if err := row.Scan(&c.Nodes, &c.Edges, &c.Embeddings); err != nil {
		return Counts{}, err
	}
	return c, nil
}

// NodeTimestamps returns a node's created_at and updated_at, for callers that
// need to distinguish creation from refresh.
func (s *SQLiteStore) NodeTimestamps(ctx context.Context, id string) (created, updated time.Time, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT created_at, updated_at FROM nodes WHERE id = ?`, id).Scan(&created, &updated)
	return created, updated, err
}

// --- helpers ---

func rankRows(rows *sql.Rows, vector []float32, excludeID string, minSimilarity float64) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Filepath, &c.Kind, &c.Name, &c.Content, &c.StartLine, &c.EndLine, &blob); err != nil {
			return nil, err
		}
		if c.ID == excludeID {
			continue
		}
		stored, err := decodeVector(blob)
		if err != nil {
			continue
		}
		c.Similarity = cosineSimilarity(vector, stored)
		if c.Similarity > minSimilarity {
			chunks = append(chunks, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Similarity > chunks[j].Similarity
	})
	return chunks, nil
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Filepath, &c.Kind, &c.Name, &c.Content, &c.StartLine, &c.EndLine); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func encodeVector(v []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte) ([]float32, error) {
	v := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
