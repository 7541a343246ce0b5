package account

import (
	"strings"
	"time"
)

// User はログイン可能な利用者です。OTP 検証が済むまで Active は false です。
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         Role
	Active       bool
	Staff        bool
	CreatedAt    time.Time
}

// FullName は姓名を空白区切りで返します。
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Profile はロール別のプロフィール項目です。ロールに関係ない項目は無視されます。
type Profile struct {
	ContactNumber string
	Expertise     string
	Workplace     string
	YearLevel     int
	Department    string
	Course        string
	Program       string
}

// ConsultantProfile はコンサルタントのプロフィールです。
type ConsultantProfile struct {
	UserID        string
	ContactNumber string
	Expertise     string
	Workplace     string
	Verified      bool
}

// Registration は登録フォームの入力値です。
type Registration struct {
	FullName      string `json:"fullName" validate:"required,max=150"`
	Email         string `json:"email" validate:"required,email,max=254"`
	Password      string `json:"password" validate:"required,min=8,max=128"`
	Role          Role   `json:"role" validate:"required"`
	Workplace     string `json:"workplace" validate:"max=100"`
	ContactNumber string `json:"contactNumber" validate:"max=15"`
	Expertise     string `json:"expertise" validate:"max=100"`
	YearLevel     int    `json:"yearLevel" validate:"gte=0,lte=10"`
	Department    string `json:"department" validate:"max=100"`
	Course        string `json:"course" validate:"max=100"`
	Program       string `json:"program" validate:"max=100"`
}

func (r Registration) profile() Profile {
	year := r.YearLevel
	if r.Role == RoleStudent && year == 0 {
		year = 1
	}
	return Profile{
		ContactNumber: strings.TrimSpace(r.ContactNumber),
		Expertise:     strings.TrimSpace(r.Expertise),
		Workplace:     strings.TrimSpace(r.Workplace),
		YearLevel:     year,
		Department:    strings.TrimSpace(r.Department),
		Course:        strings.TrimSpace(r.Course),
		Program:       strings.TrimSpace(r.Program),
	}
}

// splitName はフルネームを最初の空白で姓名に分けます。
func splitName(full string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(full), " ", 2)
	first := parts[0]
	last := ""
	if len(parts) > 1 {
		last = strings.TrimSpace(parts[1])
	}
	return first, last
}

// NormalizeEmail は前後の空白を除き、ドメイン部を小文字にします。
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}
