package store

// Post is the document store's post record (spec.md §3 "Post").
type Post struct {
	ID       string
	AuthorID string // empty for posts made without a signed-in user
	X, Y     float64
	Body     string
	Likes    int
	Dislikes int
	Views    int
	Expiry   int // days-since-epoch
}

// User is the document store's user record (spec.md §3 "User").
type User struct {
	ID       string
	Username string
	Avatar   int
	Hash     string // bcrypt hash; never serialized back to clients
}

// VoteKind is the value half of the vote composite key (spec.md §3
// "Vote"). VoteNone represents the absence of a vote row, not a stored
// value.
type VoteKind int

const (
	VoteNone VoteKind = iota
	VoteLike
	VoteDislike
)

// weight implements spec.md §4.D's Δexpiry weights: Like:+2, Dislike:-1,
// None:0.
func (k VoteKind) weight() int {
	switch k {
	case VoteLike:
		return 2
	case VoteDislike:
		return -1
	default:
		return 0
	}
}

func (k VoteKind) column() string {
	switch k {
	case VoteLike:
		return "like"
	case VoteDislike:
		return "dislike"
	default:
		return ""
	}
}

func voteKindFromColumn(s string) VoteKind {
	switch s {
	case "like":
		return VoteLike
	case "dislike":
		return VoteDislike
	default:
		return VoteNone
	}
}

// PostPOI is the lean projection geoquery_posts returns: position, blurb
// (first 25 code points of the body), and id — the uncached-zoom
// equivalent of a clusterindex.Cluster with size omitted (a single).
type PostPOI struct {
	ID    string
	X, Y  float64
	Blurb string
}

// blurbOf returns the first <=25 code points (runes) of body, per spec.md
// §3 "Cluster" / §4.D.
func blurbOf(body string) string {
	runes := []rune(body)
	if len(runes) <= 25 {
		return body
	}
	return string(runes[:25])
}
