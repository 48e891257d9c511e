// Package profile はメッセージや通知に添付するユーザーの表示情報を提供する。
package profile

import "strings"

// User はストアが保持するユーザーのうち、表示に必要な項目だけを持つ読み取り専用の値。
type User struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// FirstName は名。
	FirstName string `json:"firstName"`
	// LastName は姓。
	LastName string `json:"lastName"`
	// Path はプロフィールのパス（例: "/bob"）。
	Path string `json:"path"`
	// Image は汎用の画像。
	Image string `json:"image,omitempty"`
	// ProfileImage はプロフィール専用の画像。Imageより優先される。
	ProfileImage string `json:"profileImage,omitempty"`
}

// FullName は「名 姓」形式の表示名を返す。
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Avatar は表示に使う画像を返す。プロフィール画像があればそちらを使う。
func (u User) Avatar() string {
	if u.ProfileImage != "" {
		return u.ProfileImage
	}
	return u.Image
}
