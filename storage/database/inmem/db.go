// Package inmemdb implements the repositories on top of in-memory tables.
// It backs the tests and the `debug` runs without a database.
package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/eminingcampus/campus/core/cart"
	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/discussion"
	"github.com/eminingcampus/campus/core/learning"
	"github.com/eminingcampus/campus/core/order"
	"github.com/eminingcampus/campus/core/review"
	"github.com/eminingcampus/campus/core/user"
)

// DB holds every table behind a single lock, so that joins see a consistent state.
type DB struct {
	mutex   sync.RWMutex
	txMutex sync.Mutex
	seq     map[string]int64

	users        map[string]*user.User
	categories   map[int64]*catalog.Category
	instructors  map[int64]*catalog.Instructor
	courses      map[int64]*catalog.Course
	sections     map[int64]*catalog.Section
	lessons      map[int64]*catalog.Lesson
	enrollments  map[int64]*learning.Enrollment
	progress     map[int64]*learning.LessonProgress
	certificates map[int64]*learning.Certificate
	carts        map[int64]*cart.Cart
	cartItems    map[int64]*cart.Item
	orders       map[int64]*order.Order
	orderItems   map[int64]*order.Item
	reviews      map[int64]*review.Review
	discussions  map[int64]*discussion.Discussion
	replies      map[int64]*discussion.Reply
}

func Open() *DB {
	return &DB{
		seq:          make(map[string]int64),
		users:        make(map[string]*user.User),
		categories:   make(map[int64]*catalog.Category),
		instructors:  make(map[int64]*catalog.Instructor),
		courses:      make(map[int64]*catalog.Course),
		sections:     make(map[int64]*catalog.Section),
		lessons:      make(map[int64]*catalog.Lesson),
		enrollments:  make(map[int64]*learning.Enrollment),
		progress:     make(map[int64]*learning.LessonProgress),
		certificates: make(map[int64]*learning.Certificate),
		carts:        make(map[int64]*cart.Cart),
		cartItems:    make(map[int64]*cart.Item),
		orders:       make(map[int64]*order.Order),
		orderItems:   make(map[int64]*order.Item),
		reviews:      make(map[int64]*review.Review),
		discussions:  make(map[int64]*discussion.Discussion),
		replies:      make(map[int64]*discussion.Reply),
	}
}

type txKey struct{}

// RunInTx runs one unit of work at a time, joining the ongoing one if any.
// When fn fails every table is restored to its state before fn, which also drops
// the writes made meanwhile outside of a transaction.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	db.txMutex.Lock()
	defer db.txMutex.Unlock()

	snap := db.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

func (db *DB) snapshot() *DB {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	seq := make(map[string]int64, len(db.seq))
	for k, v := range db.seq {
		seq[k] = v
	}
	return &DB{
		seq:          seq,
		users:        cloneTable(db.users),
		categories:   cloneTable(db.categories),
		instructors:  cloneTable(db.instructors),
		courses:      cloneTable(db.courses),
		sections:     cloneTable(db.sections),
		lessons:      cloneTable(db.lessons),
		enrollments:  cloneTable(db.enrollments),
		progress:     cloneTable(db.progress),
		certificates: cloneTable(db.certificates),
		carts:        cloneTable(db.carts),
		cartItems:    cloneTable(db.cartItems),
		orders:       cloneTable(db.orders),
		orderItems:   cloneTable(db.orderItems),
		reviews:      cloneTable(db.reviews),
		discussions:  cloneTable(db.discussions),
		replies:      cloneTable(db.replies),
	}
}

func (db *DB) restore(snap *DB) {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.seq = snap.seq
	db.users = snap.users
	db.categories = snap.categories
	db.instructors = snap.instructors
	db.courses = snap.courses
	db.sections = snap.sections
	db.lessons = snap.lessons
	db.enrollments = snap.enrollments
	db.progress = snap.progress
	db.certificates = snap.certificates
	db.carts = snap.carts
	db.cartItems = snap.cartItems
	db.orders = snap.orders
	db.orderItems = snap.orderItems
	db.reviews = snap.reviews
	db.discussions = snap.discussions
	db.replies = snap.replies
}

// cloneTable copies the rows, so that in-place updates do not leak into the copy.
func cloneTable[K comparable, V any](table map[K]*V) map[K]*V {
	out := make(map[K]*V, len(table))
	for k, row := range table {
		cp := *row
		out[k] = &cp
	}
	return out
}

// nextID must be called with the write lock held.
func (db *DB) nextID(table string) int64 {
	db.seq[table]++
	return db.seq[table]
}

// sortedKeys returns the table primary keys in insertion order.
func sortedKeys[V any](table map[int64]V) []int64 {
	ids := make([]int64, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func containsID(ids []int64, id int64) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
