package store

// User is one account. Passwords are stored as bcrypt hashes.
type User struct {
	PasswordHash   string `json:"password_hash"`
	Role           string `json:"role"`
	ActiveRecordID string `json:"active_record_id"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// EMRContext is the per-record draft state of the doctor EMR editor.
type EMRContext struct {
	Brief     string `json:"brief,omitempty"`
	EMRHTML   string `json:"emr_html,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// Report is a saved analysis report attached to a health record.
type Report struct {
	ReportID  string `json:"report_id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	Content   any    `json:"content"`
}

// Record is one health record (archive) owned by a user. Age, height and
// weight pass through as the client sent them.
type Record struct {
	RecordID           string      `json:"record_id"`
	Name               string      `json:"name"`
	Age                any         `json:"age"`
	Gender             string      `json:"gender"`
	Height             any         `json:"height"`
	Weight             any         `json:"weight"`
	Allergies          []string    `json:"allergies"`
	Diagnoses          []string    `json:"diagnoses"`
	CurrentMedications []string    `json:"current_medications"`
	Notes              string      `json:"notes"`
	Reports            []*Report   `json:"reports,omitempty"`
	EMRContext         *EMRContext `json:"emr_context,omitempty"`
}

// Comment is one reply under a community post.
type Comment struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	ParentID  string `json:"parent_id,omitempty"`
}

// Post is one community post. Likes and Bookmarks hold usernames.
type Post struct {
	ID        string     `json:"id"`
	Author    string     `json:"author"`
	Content   string     `json:"content"`
	CreatedAt string     `json:"created_at"`
	Likes     []string   `json:"likes"`
	Bookmarks []string   `json:"bookmarks,omitempty"`
	Comments  []*Comment `json:"comments"`
	Tags      []string   `json:"tags"`
	Images    []string   `json:"images"`
	Pinned    bool       `json:"pinned"`
}
