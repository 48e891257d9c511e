// Package presence はユーザーIDと現在の接続を対応づけるプロセス内のディレクトリを提供する。
//
// 1ユーザーにつき登録できる接続は1つで、後から接続した方が勝つ。
// 永続化はしないため、プロセス再起動後は全ユーザーがオフラインになる。
// 複数プロセスで状態を共有する仕組みは持たない。
package presence

import "sync"

// Handle はディレクトリに登録する接続。IDは接続ごとに一意でなければならない。
type Handle interface {
	ID() string
}

// Directory はユーザーIDごとに最大1つの接続を保持する。並行に利用してよい。
type Directory[H Handle] struct {
	mu      sync.RWMutex
	handles map[string]H
}

// NewDirectory は空のDirectoryを生成する。
func NewDirectory[H Handle]() *Directory[H] {
	return &Directory[H]{handles: make(map[string]H)}
}

// Register はuserIDの接続としてhを登録し、置き換えられた以前の接続を返す。
// 以前の接続が無ければokはfalseになる。
func (d *Directory[H]) Register(userID string, h H) (previous H, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	previous, ok = d.handles[userID]
	d.handles[userID] = h
	return previous, ok
}

// Unregister はuserIDに登録されている接続がhである場合に限り登録を解除し、解除したかを返す。
// 新しい接続に置き換えられた後で古い接続が切断されても、新しい登録は消えない。
func (d *Directory[H]) Unregister(userID string, h H) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	current, ok := d.handles[userID]
	if !ok || current.ID() != h.ID() {
		return false
	}
	delete(d.handles, userID)
	return true
}

// Lookup はuserIDの現在の接続を返す。
func (d *Directory[H]) Lookup(userID string) (H, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handles[userID]
	return h, ok
}

// Online はuserIDが接続中かを返す。
func (d *Directory[H]) Online(userID string) bool {
	_, ok := d.Lookup(userID)
	return ok
}

// Count は接続中のユーザー数を返す。
func (d *Directory[H]) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handles)
}
