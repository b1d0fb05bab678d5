package database

import (
	"errors"

	"krampus/internal/domain"

	"gorm.io/gorm"
)

func GetUserByUsername(username string) (*domain.User, error) {
	var user domain.User
	err := DB.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByID(id uint) (*domain.User, error) {
	var user domain.User
	err := DB.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func CreateUser(user *domain.User) error {
	return DB.Create(user).Error
}

func UpdateUserPassword(id uint, hashed string) error {
	return DB.Model(&domain.User{}).Where("id = ?", id).Update("password", hashed).Error
}

func CountUsers() (int64, error) {
	var count int64
	err := DB.Model(&domain.User{}).Count(&count).Error
	return count, err
}

func ListUsers() ([]domain.User, error) {
	var users []domain.User
	if err := DB.Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
