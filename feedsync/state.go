package feedsync

import (
	"log"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/commonroom/commonroom_backend/models"
)

// ItemStatus is the per-entity mutation state machine driving busy
// indicators and error badges.
type ItemStatus int

const (
	StatusIdle ItemStatus = iota
	StatusPending
	StatusError
)

type statusKey struct {
	kind OpKind
	id   string
}

// State is the materialized client view: the feed window, the currently
// open comment thread, the per-post like sets and the per-entity mutation
// status. Every field is guarded by mu; mutation paths and stream merges
// are logically concurrent completions, so each one takes the lock for the
// whole of its apply step and no torn intermediate state is ever visible.
type State struct {
	mu sync.RWMutex

	self primitive.ObjectID

	criteria models.FeedCriteria
	posts    []models.Post
	page     int
	total    int64

	threadOpen   bool
	threadPostID primitive.ObjectID
	comments     []models.Comment

	// likes is keyed post hex -> caller hex. A like is at most one per
	// (post, caller) pair, so set union over that key is all the
	// reconciliation likes ever need.
	likes map[string]map[string]models.Like

	status map[statusKey]ItemStatus
}

func NewState(self primitive.ObjectID) *State {
	return &State{
		self:   self,
		likes:  make(map[string]map[string]models.Like),
		status: make(map[statusKey]ItemStatus),
	}
}

// Feed returns a copy of the materialized feed window.
func (s *State) Feed() models.FeedPage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	posts := make([]models.Post, len(s.posts))
	copy(posts, s.posts)
	return models.FeedPage{
		Posts:      posts,
		Page:       s.page,
		TotalCount: s.total,
		HasMore:    int64(len(s.posts)) < s.total,
	}
}

// Criteria returns the filter the feed is currently materialized under.
func (s *State) Criteria() models.FeedCriteria {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.criteria
}

// Thread returns the open thread's post id and a deep copy of its comment
// tree. ok is false when no thread is open.
func (s *State) Thread() (postID primitive.ObjectID, comments []models.Comment, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.threadOpen {
		return primitive.NilObjectID, nil, false
	}
	return s.threadPostID, copyComments(s.comments), true
}

// Status reports the mutation state of one entity under one operation kind.
func (s *State) Status(kind OpKind, id string) ItemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status[statusKey{kind, id}]
}

func (s *State) setStatus(kind OpKind, id string, st ItemStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == StatusIdle {
		delete(s.status, statusKey{kind, id})
		return
	}
	s.status[statusKey{kind, id}] = st
}

// replaceFeed installs a fresh first page under new criteria. Used by
// ResetAndLoad; any older window is discarded wholesale.
func (s *State) replaceFeed(criteria models.FeedCriteria, posts []models.Post, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.criteria = criteria
	s.posts = posts
	s.page = 1
	s.total = total
	s.seedLikesLocked(posts)
}

// appendFeedPage appends one successfully loaded page to the tail of the
// window and advances the page counter.
func (s *State) appendFeedPage(posts []models.Post, page int, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.posts = append(s.posts, posts...)
	s.page = page
	s.total = total
	s.seedLikesLocked(posts)
}

// seedLikesLocked records the caller's own confirmed likes reported by a
// page load so a later stream delivery of the same like is a no-op union.
func (s *State) seedLikesLocked(posts []models.Post) {
	for _, p := range posts {
		if !p.Liked {
			continue
		}
		key := p.ID.Hex()
		if s.likes[key] == nil {
			s.likes[key] = make(map[string]models.Like)
		}
		if _, ok := s.likes[key][s.self.Hex()]; !ok {
			s.likes[key][s.self.Hex()] = models.Like{PostID: p.ID, UserID: s.self}
		}
	}
}

// openThread installs the initial comment tree for a post.
func (s *State) openThread(postID primitive.ObjectID, comments []models.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threadOpen = true
	s.threadPostID = postID
	s.comments = comments
	s.recountLocked(postID)
}

func (s *State) closeThread() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threadOpen = false
	s.threadPostID = primitive.NilObjectID
	s.comments = nil
}

// installThreadFetch applies a re-fetched comment tree. The open thread is
// replaced when it belongs to this post; the feed entry's comment-count
// projection is recomputed from the fetched tree either way.
func (s *State) installThreadFetch(postID primitive.ObjectID, comments []models.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.threadOpen && s.threadPostID == postID {
		s.comments = comments
	}
	count := CountComments(comments)
	for i := range s.posts {
		if s.posts[i].ID == postID {
			s.posts[i].CommentCount = count
			break
		}
	}
}

func (s *State) postByID(id primitive.ObjectID) (models.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.posts {
		if p.ID == id {
			return p, true
		}
	}
	return models.Post{}, false
}

func (s *State) removePost(id primitive.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.posts {
		if p.ID == id {
			s.posts = append(s.posts[:i], s.posts[i+1:]...)
			if s.total > 0 {
				s.total--
			}
			break
		}
	}
	delete(s.likes, id.Hex())
	if s.threadOpen && s.threadPostID == id {
		s.threadOpen = false
		s.threadPostID = primitive.NilObjectID
		s.comments = nil
	}
}

// likeSnapshot captures everything an optimistic like toggle changed, so a
// failed round trip can be inverted exactly.
type likeSnapshot struct {
	liked   bool
	count   int64
	removed *models.Like
	tempID  string
}

// optimisticToggleLike flips the caller's like locally before the request
// is dispatched: flag and displayed count change synchronously. Returns
// the snapshot the rollback path needs.
func (s *State) optimisticToggleLike(postID primitive.ObjectID) (likeSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, p := range s.posts {
		if p.ID == postID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return likeSnapshot{}, false
	}

	post := &s.posts[idx]
	snap := likeSnapshot{liked: post.Liked, count: post.LikeCount}
	key := postID.Hex()
	caller := s.self.Hex()

	if post.Liked {
		if entry, ok := s.likes[key][caller]; ok {
			snap.removed = &entry
			delete(s.likes[key], caller)
		}
		post.Liked = false
		if post.LikeCount > 0 {
			post.LikeCount--
		}
	} else {
		snap.tempID = NewTempLikeID(s.self)
		if s.likes[key] == nil {
			s.likes[key] = make(map[string]models.Like)
		}
		s.likes[key][caller] = models.Like{ID: snap.tempID, PostID: postID, UserID: s.self}
		post.Liked = true
		post.LikeCount++
	}
	return snap, true
}

// confirmToggleLike replaces the optimistic projection with the server's
// authoritative count and discards the temporary id.
func (s *State) confirmToggleLike(postID primitive.ObjectID, liked bool, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := postID.Hex()
	caller := s.self.Hex()
	if liked {
		s.likes[key][caller] = models.Like{PostID: postID, UserID: s.self}
	} else {
		delete(s.likes[key], caller)
	}
	for i := range s.posts {
		if s.posts[i].ID == postID {
			s.posts[i].Liked = liked
			s.posts[i].LikeCount = count
			break
		}
	}
}

// rollbackToggleLike inverts the optimistic change exactly: the inserted
// temporary like is removed, or the removed one re-inserted, and flag and
// count return to their pre-call values.
func (s *State) rollbackToggleLike(postID primitive.ObjectID, snap likeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := postID.Hex()
	caller := s.self.Hex()
	if snap.tempID != "" {
		if entry, ok := s.likes[key][caller]; ok && entry.ID == snap.tempID {
			delete(s.likes[key], caller)
		}
	}
	if snap.removed != nil {
		if s.likes[key] == nil {
			s.likes[key] = make(map[string]models.Like)
		}
		s.likes[key][caller] = *snap.removed
	}
	for i := range s.posts {
		if s.posts[i].ID == postID {
			s.posts[i].Liked = snap.liked
			s.posts[i].LikeCount = snap.count
			break
		}
	}
}

// findComment locates a comment or reply in the open thread. The returned
// parent is nil for top-level comments.
func (s *State) findComment(id primitive.ObjectID) (comment *models.Comment, parent *models.Comment) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.comments {
		if s.comments[i].ID == id {
			c := s.comments[i]
			return &c, nil
		}
		for j := range s.comments[i].Replies {
			if s.comments[i].Replies[j].ID == id {
				r := s.comments[i].Replies[j]
				p := s.comments[i]
				return &r, &p
			}
		}
	}
	return nil, nil
}

// applyMerge is the single reducer every stream batch goes through. The
// merge is idempotent and commutative over duplicate deliveries: dedup is
// keyed on id membership, not event order, so applying a batch twice, or
// two overlapping batches in either order, lands in the same state. A
// batch item is applied whole or not at all.
func (s *State) applyMerge(batch EventBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.threadOpen && s.threadPostID == batch.PostID {
		s.mergeCommentsLocked(batch)
	}
	s.mergeLikesLocked(batch)
}

func (s *State) mergeCommentsLocked(batch EventBatch) {
	// Step 1: every comment and reply id already known for this post.
	known := make(map[primitive.ObjectID]struct{})
	for _, c := range s.comments {
		known[c.ID] = struct{}{}
		for _, r := range c.Replies {
			known[r.ID] = struct{}{}
		}
	}

	changed := false
	for _, in := range batch.Comments {
		// Step 2: drop duplicates already present from the initial load,
		// an optimistic path or an earlier batch.
		if _, dup := known[in.ID]; dup {
			continue
		}
		if in.ParentID == nil {
			in.Replies = nil
			s.comments = append(s.comments, in)
			known[in.ID] = struct{}{}
			changed = true
			continue
		}
		// Step 3: replies attach to a locally known top-level comment
		// only. An unknown parent is a data integrity situation; the item
		// is dropped rather than guessed into place.
		attached := false
		for i := range s.comments {
			if s.comments[i].ID == *in.ParentID {
				in.Replies = nil
				s.comments[i].Replies = append(s.comments[i].Replies, in)
				known[in.ID] = struct{}{}
				attached = true
				changed = true
				break
			}
		}
		if !attached {
			log.Printf("feedsync: dropping streamed reply %s: %v", in.ID.Hex(), ErrUnknownParent)
		}
	}

	// Step 4: the feed mirror of this post follows the merged tree.
	if changed {
		s.recountLocked(batch.PostID)
	}
}

func (s *State) mergeLikesLocked(batch EventBatch) {
	if len(batch.Likes) == 0 {
		return
	}
	key := batch.PostID.Hex()
	if s.likes[key] == nil {
		s.likes[key] = make(map[string]models.Like)
	}

	// Step 5: plain set union over (post, caller); a like is idempotent.
	added := int64(0)
	for _, in := range batch.Likes {
		caller := in.UserID.Hex()
		if _, dup := s.likes[key][caller]; dup {
			continue
		}
		s.likes[key][caller] = in
		added++
	}
	if added == 0 {
		return
	}
	for i := range s.posts {
		if s.posts[i].ID == batch.PostID {
			s.posts[i].LikeCount += added
			if _, mine := s.likes[key][s.self.Hex()]; mine {
				s.posts[i].Liked = true
			}
			break
		}
	}
}

// recountLocked recomputes the post's comment-count projection from the
// thread tree: one per top-level comment plus its replies.
func (s *State) recountLocked(postID primitive.ObjectID) {
	if !s.threadOpen || s.threadPostID != postID {
		return
	}
	count := CountComments(s.comments)
	for i := range s.posts {
		if s.posts[i].ID == postID {
			s.posts[i].CommentCount = count
			break
		}
	}
}

// CountComments computes the comment-count projection for a thread tree.
func CountComments(comments []models.Comment) int {
	count := 0
	for _, c := range comments {
		count += 1 + len(c.Replies)
	}
	return count
}

func copyComments(comments []models.Comment) []models.Comment {
	out := make([]models.Comment, len(comments))
	copy(out, comments)
	for i := range out {
		if len(out[i].Replies) > 0 {
			replies := make([]models.Comment, len(out[i].Replies))
			copy(replies, out[i].Replies)
			out[i].Replies = replies
		}
	}
	return out
}
