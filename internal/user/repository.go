package user

import (
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindByGoogleID(googleID string) (*User, error)
	FindByEmail(email string) (*User, error)
	FindByID(id string) (*User, error)
	CreateUser(user *User) error
	TouchLastLogin(id string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByGoogleID(googleID string) (*User, error) {
	var user User
	err := r.db.Where("google_id = ?", googleID).First(&user).Error
	return &user, err
}

func (r *repository) FindByEmail(email string) (*User, error) {
	var user User
	err := r.db.Where("email = ?", email).First(&user).Error
	return &user, err
}

func (r *repository) FindByID(id string) (*User, error) {
	var user User
	err := r.db.Where("id = ?", id).First(&user).Error
	return &user, err
}

func (r *repository) CreateUser(user *User) error {
	return r.db.Create(user).Error
}

func (r *repository) TouchLastLogin(id string) error {
	return r.db.Model(&User{}).Where("id = ?", id).UpdateColumn("last_login_at", time.Now()).Error
}
