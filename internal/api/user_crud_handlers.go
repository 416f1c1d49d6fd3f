package api

import (
	"log"
	"net/http"

	"tieredmemory/internal/db"
	"tieredmemory/internal/user"

	"github.com/gin-gonic/gin"
)

// userJSON is the response shape shared by every user-returning
// handler: credentials stay out, the memory owner id and the
// personalisation profile go in.
func userJSON(u *user.User) gin.H {
	return gin.H{
		"id":                   u.ID,
		"username":             u.Username,
		"role":                 u.Role,
		"ownerId":              u.MemoryOwnerID(),
		"learningStyle":        u.LearningStyle,
		"difficultyPreference": u.DifficultyPreference,
		"interests":            u.InterestList(),
		"createdAt":            u.CreatedAt,
	}
}

// purgeOwnedMemories best-effort deletes a removed user's memories
// from the vector store. A purge failure doesn't fail the account
// deletion; the lifecycle cleanup will age the orphans out eventually.
func purgeOwnedMemories(c *gin.Context, u *user.User) {
	if memSvc == nil {
		return
	}
	deleted, err := memSvc.DeleteByOwner(c.Request.Context(), u.MemoryOwnerID())
	if err != nil {
		log.Printf("[API] memory purge for %s incomplete after %d deletions: %v", u.MemoryOwnerID(), deleted, err)
	}
}

// GET /users  [admin enforced by the router's middleware]
func ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var users []user.User
		if err := db.DB.Find(&users).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "List error"}})
			return
		}
		result := make([]gin.H, 0, len(users))
		for i := range users {
			result = append(result, userJSON(&users[i]))
		}
		c.JSON(http.StatusOK, result)
	}
}

type createUserRequest struct {
	Username             string   `json:"username"`
	Password             string   `json:"password"`
	Role                 string   `json:"role"`
	LearningStyle        string   `json:"learningStyle"`
	DifficultyPreference string   `json:"difficultyPreference"`
	Interests            []string `json:"interests"`
}

// POST /users  [admin enforced by the router's middleware]
func CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "Missing username or password"}})
			return
		}
		role := user.RoleUser
		if req.Role != "" {
			if req.Role != string(user.RoleAdmin) && req.Role != string(user.RoleUser) {
				c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "Invalid role"}})
				return
			}
			role = user.Role(req.Role)
		}
		pwHash, err := user.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Password hash failed"}})
			return
		}
		newUser := user.User{
			Username:             req.Username,
			PasswordHash:         pwHash,
			Role:                 role,
			LearningStyle:        req.LearningStyle,
			DifficultyPreference: req.DifficultyPreference,
			Interests:            user.JoinInterests(req.Interests),
		}
		if err := db.DB.Create(&newUser).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Create error"}})
			return
		}
		c.JSON(http.StatusCreated, userJSON(&newUser))
	}
}

// GET /users/me
func GetMeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, _ := c.Get("userId")
		var u user.User
		if err := db.DB.First(&u, userId.(uint)).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "User not found"}})
			return
		}
		c.JSON(http.StatusOK, userJSON(&u))
	}
}

type UpdateMeRequest struct {
	Password             string   `json:"password,omitempty"`
	LearningStyle        *string  `json:"learningStyle,omitempty"`
	DifficultyPreference *string  `json:"difficultyPreference,omitempty"`
	Interests            []string `json:"interests,omitempty"`
}

// PUT /users/me
func UpdateMeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, _ := c.Get("userId")
		var req UpdateMeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "Invalid request"}})
			return
		}
		var u user.User
		if err := db.DB.First(&u, userId.(uint)).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "User not found"}})
			return
		}
		if req.Password != "" {
			pwHash, err := user.HashPassword(req.Password)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Password hash failed"}})
				return
			}
			u.PasswordHash = pwHash
		}
		if req.LearningStyle != nil {
			u.LearningStyle = *req.LearningStyle
		}
		if req.DifficultyPreference != nil {
			u.DifficultyPreference = *req.DifficultyPreference
		}
		if req.Interests != nil {
			u.Interests = user.JoinInterests(req.Interests)
		}
		if err := db.DB.Save(&u).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Update error"}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User updated"})
	}
}

// DELETE /users/me
func DeleteMeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, _ := c.Get("userId")
		var u user.User
		if err := db.DB.First(&u, userId.(uint)).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "User not found"}})
			return
		}
		if err := db.DB.Delete(&user.User{}, u.ID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Delete error"}})
			return
		}
		purgeOwnedMemories(c, &u)
		c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
	}
}

// GET /users/:id  [admin only]
func GetUserByIdHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("userRole")
		if role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": gin.H{"message": "Forbidden"}})
			return
		}
		id := c.Param("id")
		var u user.User
		if err := db.DB.First(&u, id).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "User not found"}})
			return
		}
		c.JSON(http.StatusOK, userJSON(&u))
	}
}

type UpdateUserRequest struct {
	Password             string   `json:"password,omitempty"`
	Role                 string   `json:"role,omitempty"`
	LearningStyle        *string  `json:"learningStyle,omitempty"`
	DifficultyPreference *string  `json:"difficultyPreference,omitempty"`
	Interests            []string `json:"interests,omitempty"`
}

// PUT /users/:id  [admin only]
func UpdateUserByIdHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("userRole")
		if role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": gin.H{"message": "Forbidden"}})
			return
		}
		id := c.Param("id")
		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "Invalid request"}})
			return
		}
		var u user.User
		if err := db.DB.First(&u, id).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "User not found"}})
			return
		}
		if req.Password != "" {
			pwHash, err := user.HashPassword(req.Password)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Password hash failed"}})
				return
			}
			u.PasswordHash = pwHash
		}
		if req.Role != "" && (req.Role == "admin" || req.Role == "user") {
			u.Role = user.Role(req.Role)
		}
		if req.LearningStyle != nil {
			u.LearningStyle = *req.LearningStyle
		}
		if req.DifficultyPreference != nil {
			u.DifficultyPreference = *req.DifficultyPreference
		}
		if req.Interests != nil {
			u.Interests = user.JoinInterests(req.Interests)
		}
		if err := db.DB.Save(&u).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Update error"}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User updated"})
	}
}

// DELETE /users/:id  [admin only]
func DeleteUserByIdHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("userRole")
		if role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": gin.H{"message": "Forbidden"}})
			return
		}
		id := c.Param("id")
		var u user.User
		if err := db.DB.First(&u, id).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "User not found"}})
			return
		}
		if err := db.DB.Delete(&user.User{}, u.ID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Delete error"}})
			return
		}
		purgeOwnedMemories(c, &u)
		c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
	}
}
