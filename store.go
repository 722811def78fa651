package junksite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = sql.ErrNoRows
	// ErrDuplicate is returned when a unique value is already stored.
	ErrDuplicate = errors.New("already exists")
)

// Fixed-width so that dates sort lexically in SQL.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Store wraps a SQLite database holding posts, newsletter subscribers and
// contact-form submissions.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and runs schema migrations.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets readers proceed during the occasional write; busy_timeout
	// makes writers wait instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    excerpt TEXT NOT NULL,
    content TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    image BLOB,
    image_type TEXT NOT NULL DEFAULT '',
    date TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_date ON posts(date);

CREATE TABLE IF NOT EXISTS subscribers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT NOT NULL UNIQUE COLLATE NOCASE,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    phone TEXT NOT NULL DEFAULT '',
    service TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL,
    created_at TEXT NOT NULL
);
`)
	return err
}

// --- Posts ---

func validatePost(p Post) error {
	switch {
	case strings.TrimSpace(p.Title) == "":
		return &ValidationError{Field: "title", Reason: "is required"}
	case strings.TrimSpace(p.Excerpt) == "":
		return &ValidationError{Field: "excerpt", Reason: "is required"}
	case strings.TrimSpace(p.Content) == "":
		return &ValidationError{Field: "content", Reason: "is required"}
	}
	if p.Image != nil {
		if len(p.Image.Data) == 0 {
			return &ValidationError{Field: "image", Reason: "is empty"}
		}
		typ, sub, ok := strings.Cut(p.Image.ContentType, "/")
		if !ok || typ != "image" || sub == "" {
			return &ValidationError{Field: "image", Reason: fmt.Sprintf("has unsupported content type %q", p.Image.ContentType)}
		}
	}
	return nil
}

func encodeTags(tags []string) (string, error) {
	tags = FilterEmpty(tags)
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeTags(s string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil || tags == nil {
		return []string{}
	}
	return tags
}

func imageColumns(img *PostImage) (any, string) {
	if img == nil {
		return nil, ""
	}
	return img.Data, img.ContentType
}

// CreatePost validates and inserts p, stamping the creation date. The stored
// post is returned with its new ID.
func (s *Store) CreatePost(ctx context.Context, p Post) (Post, error) {
	if err := validatePost(p); err != nil {
		return Post{}, err
	}
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return Post{}, err
	}
	p.Date = s.now().UTC()
	data, typ := imageColumns(p.Image)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (title, excerpt, content, category, tags, image, image_type, date) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Title, p.Excerpt, p.Content, p.Category, tags, data, typ, p.Date.Format(timeLayout))
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return Post{}, err
	}
	p.Tags = decodeTags(tags)
	p.HasImage = p.Image != nil
	return p, nil
}

// UpdatePost rewrites the text fields of an existing post. The image is only
// touched when replaceImage is set; a nil p.Image then removes it.
func (s *Store) UpdatePost(ctx context.Context, p Post, replaceImage bool) (Post, error) {
	if err := validatePost(p); err != nil {
		return Post{}, err
	}
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return Post{}, err
	}
	var res sql.Result
	if replaceImage {
		data, typ := imageColumns(p.Image)
		res, err = s.db.ExecContext(ctx,
			`UPDATE posts SET title = ?, excerpt = ?, content = ?, category = ?, tags = ?, image = ?, image_type = ? WHERE id = ?`,
			p.Title, p.Excerpt, p.Content, p.Category, tags, data, typ, p.ID)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE posts SET title = ?, excerpt = ?, content = ?, category = ?, tags = ? WHERE id = ?`,
			p.Title, p.Excerpt, p.Content, p.Category, tags, p.ID)
	}
	if err != nil {
		return Post{}, fmt.Errorf("update post: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return Post{}, err
	}
	return s.GetPost(ctx, p.ID)
}

// GetPost returns a post by ID, including its image bytes.
func (s *Store) GetPost(ctx context.Context, id int64) (Post, error) {
	var (
		p         Post
		tags      string
		date      string
		image     []byte
		imageType string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, excerpt, content, category, tags, image, image_type, date FROM posts WHERE id = ?`, id).
		Scan(&p.ID, &p.Title, &p.Excerpt, &p.Content, &p.Category, &tags, &image, &imageType, &date)
	if err != nil {
		return Post{}, err
	}
	p.Tags = decodeTags(tags)
	p.Date = parseTime(date)
	if image != nil {
		p.Image = &PostImage{Data: image, ContentType: imageType}
		p.HasImage = true
	}
	return p, nil
}

// ListPosts returns every post, newest first, without image bytes.
func (s *Store) ListPosts(ctx context.Context) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, excerpt, content, category, tags, image IS NOT NULL, date FROM posts ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var (
			p    Post
			tags string
			date string
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.Excerpt, &p.Content, &p.Category, &tags, &p.HasImage, &date); err != nil {
			return nil, err
		}
		p.Tags = decodeTags(tags)
		p.Date = parseTime(date)
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// GetPostImage returns only the image of a post. ErrNotFound covers both a
// missing post and a post without an image.
func (s *Store) GetPostImage(ctx context.Context, id int64) (PostImage, error) {
	var img PostImage
	err := s.db.QueryRowContext(ctx,
		`SELECT image, image_type FROM posts WHERE id = ? AND image IS NOT NULL`, id).
		Scan(&img.Data, &img.ContentType)
	if err != nil {
		return PostImage{}, err
	}
	return img, nil
}

// DeletePost removes a post by ID.
func (s *Store) DeletePost(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- Newsletter ---

// NormalizeEmail validates an address and returns its bare, lowercased form.
func NormalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &ValidationError{Field: "email", Reason: "is required"}
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", &ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	return strings.ToLower(addr.Address), nil
}

// AddSubscriber stores a newsletter signup. ErrDuplicate is returned when the
// address is already subscribed.
func (s *Store) AddSubscriber(ctx context.Context, email string) (Subscriber, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Subscriber{}, err
	}
	sub := Subscriber{Email: email, CreatedAt: s.now().UTC()}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers (email, created_at) VALUES (?, ?)`, sub.Email, sub.CreatedAt.Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return Subscriber{}, ErrDuplicate
		}
		return Subscriber{}, fmt.Errorf("insert subscriber: %w", err)
	}
	if sub.ID, err = res.LastInsertId(); err != nil {
		return Subscriber{}, err
	}
	return sub, nil
}

// ListSubscribers returns all subscribers, newest first.
func (s *Store) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, email, created_at FROM subscribers ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []Subscriber{}
	for rows.Next() {
		var (
			sub     Subscriber
			created string
		)
		if err := rows.Scan(&sub.ID, &sub.Email, &created); err != nil {
			return nil, err
		}
		sub.CreatedAt = parseTime(created)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubscriber removes a subscriber by ID.
func (s *Store) DeleteSubscriber(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- Contact form ---

func validateContact(c ContactSubmission) (ContactSubmission, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Service = strings.TrimSpace(c.Service)
	c.Message = strings.TrimSpace(c.Message)
	if c.Name == "" {
		return c, &ValidationError{Field: "name", Reason: "is required"}
	}
	if c.Message == "" {
		return c, &ValidationError{Field: "message", Reason: "is required"}
	}
	if strings.TrimSpace(c.Email) == "" && c.Phone == "" {
		return c, &ValidationError{Field: "email", Reason: "or phone is required"}
	}
	if strings.TrimSpace(c.Email) != "" {
		email, err := NormalizeEmail(c.Email)
		if err != nil {
			return c, err
		}
		c.Email = email
	}
	return c, nil
}

// SaveContact validates and stores a contact-form submission.
func (s *Store) SaveContact(ctx context.Context, c ContactSubmission) (ContactSubmission, error) {
	c, err := validateContact(c)
	if err != nil {
		return ContactSubmission{}, err
	}
	c.CreatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (name, email, phone, service, message, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.Name, c.Email, c.Phone, c.Service, c.Message, c.CreatedAt.Format(timeLayout))
	if err != nil {
		return ContactSubmission{}, fmt.Errorf("insert contact: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return ContactSubmission{}, err
	}
	return c, nil
}

// ListContacts returns all submissions, newest first.
func (s *Store) ListContacts(ctx context.Context) ([]ContactSubmission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, phone, service, message, created_at FROM contacts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []ContactSubmission{}
	for rows.Next() {
		var (
			c       ContactSubmission
			created string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Service, &c.Message, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// DeleteContact removes a submission by ID.
func (s *Store) DeleteContact(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
