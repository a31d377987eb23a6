package inmemdb

import (
	"context"
	"sort"

	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/discussion"
	"github.com/eminingcampus/campus/core/review"
)

type reviewRepository struct {
	db *DB
}

var _ review.Repository = (*reviewRepository)(nil) // interface compliance check

func NewReviewRepository(db *DB) review.Repository {
	return &reviewRepository{db: db}
}

func (repo *reviewRepository) CreateReview(_ context.Context, rev review.Review) (review.Review, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, r := range repo.db.reviews {
		if r.CourseID == rev.CourseID && r.StudentID == rev.StudentID {
			return repo.join(*r), false, nil
		}
	}
	if _, ok := repo.db.courses[rev.CourseID]; !ok {
		return review.Review{}, false, catalog.ErrCourseNotFound
	}
	rev.ID = repo.db.nextID("reviews")
	rev.StudentName = ""
	repo.db.reviews[rev.ID] = &rev
	return repo.join(rev), true, nil
}

func (repo *reviewRepository) GetReview(_ context.Context, id int64) (review.Review, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if rev, ok := repo.db.reviews[id]; ok {
		return repo.join(*rev), nil
	}
	return review.Review{}, review.ErrNotFound
}

func (repo *reviewRepository) UpdateReview(_ context.Context, rev review.Review) (review.Review, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.reviews[rev.ID]; !ok {
		return review.Review{}, review.ErrNotFound
	}
	rev.StudentName = ""
	repo.db.reviews[rev.ID] = &rev
	return repo.join(rev), nil
}

func (repo *reviewRepository) DeleteReview(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.reviews[id]; !ok {
		return review.ErrNotFound
	}
	delete(repo.db.reviews, id)
	return nil
}

func (repo *reviewRepository) ListReviews(_ context.Context, courseID int64) ([]review.Review, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	revs := make([]review.Review, 0)
	for _, id := range sortedKeys(repo.db.reviews) {
		if rev := repo.db.reviews[id]; rev.CourseID == courseID {
			revs = append(revs, repo.join(*rev))
		}
	}
	sort.SliceStable(revs, func(i, j int) bool { return revs[i].ID > revs[j].ID })
	return revs, nil
}

func (repo *reviewRepository) RatingStats(_ context.Context, courseID int64) (float64, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var sum, n int
	for _, rev := range repo.db.reviews {
		if rev.CourseID == courseID {
			sum += rev.Rating
			n++
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(n), n, nil
}

func (repo *reviewRepository) join(rev review.Review) review.Review {
	if usr, ok := repo.db.users[rev.StudentID]; ok {
		rev.StudentName = usr.DisplayName()
	}
	return rev
}

type discussionRepository struct {
	db *DB
}

var _ discussion.Repository = (*discussionRepository)(nil) // interface compliance check

func NewDiscussionRepository(db *DB) discussion.Repository {
	return &discussionRepository{db: db}
}

func (repo *discussionRepository) CreateDiscussion(_ context.Context, d discussion.Discussion) (discussion.Discussion, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[d.CourseID]; !ok {
		return discussion.Discussion{}, catalog.ErrCourseNotFound
	}
	d.ID = repo.db.nextID("discussions")
	d.AuthorName, d.ReplyCount = "", 0
	repo.db.discussions[d.ID] = &d
	return repo.joinDiscussion(d), nil
}

func (repo *discussionRepository) GetDiscussion(_ context.Context, id int64) (discussion.Discussion, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if d, ok := repo.db.discussions[id]; ok {
		return repo.joinDiscussion(*d), nil
	}
	return discussion.Discussion{}, discussion.ErrNotFound
}

func (repo *discussionRepository) ListDiscussions(_ context.Context, courseID int64) ([]discussion.Discussion, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ds := make([]discussion.Discussion, 0)
	for _, id := range sortedKeys(repo.db.discussions) {
		if d := repo.db.discussions[id]; d.CourseID == courseID {
			ds = append(ds, repo.joinDiscussion(*d))
		}
	}
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].IsPinned != ds[j].IsPinned {
			return ds[i].IsPinned
		}
		return ds[i].ID > ds[j].ID
	})
	return ds, nil
}

func (repo *discussionRepository) UpdateDiscussion(_ context.Context, d discussion.Discussion) (discussion.Discussion, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.discussions[d.ID]; !ok {
		return discussion.Discussion{}, discussion.ErrNotFound
	}
	d.AuthorName, d.ReplyCount = "", 0
	repo.db.discussions[d.ID] = &d
	return repo.joinDiscussion(d), nil
}

func (repo *discussionRepository) DeleteDiscussion(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.discussions[id]; !ok {
		return discussion.ErrNotFound
	}
	for rid, r := range repo.db.replies {
		if r.DiscussionID == id {
			delete(repo.db.replies, rid)
		}
	}
	delete(repo.db.discussions, id)
	return nil
}

func (repo *discussionRepository) CreateReply(_ context.Context, r discussion.Reply) (discussion.Reply, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.discussions[r.DiscussionID]; !ok {
		return discussion.Reply{}, discussion.ErrNotFound
	}
	r.ID = repo.db.nextID("discussion_replies")
	r.AuthorName = ""
	repo.db.replies[r.ID] = &r
	return repo.joinReply(r), nil
}

func (repo *discussionRepository) ListReplies(_ context.Context, discussionID int64) ([]discussion.Reply, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rs := make([]discussion.Reply, 0)
	for _, id := range sortedKeys(repo.db.replies) {
		if r := repo.db.replies[id]; r.DiscussionID == discussionID {
			rs = append(rs, repo.joinReply(*r))
		}
	}
	return rs, nil
}

func (repo *discussionRepository) joinDiscussion(d discussion.Discussion) discussion.Discussion {
	if usr, ok := repo.db.users[d.AuthorID]; ok {
		d.AuthorName = usr.DisplayName()
	}
	for _, r := range repo.db.replies {
		if r.DiscussionID == d.ID {
			d.ReplyCount++
		}
	}
	return d
}

func (repo *discussionRepository) joinReply(r discussion.Reply) discussion.Reply {
	if usr, ok := repo.db.users[r.AuthorID]; ok {
		r.AuthorName = usr.DisplayName()
	}
	return r
}
