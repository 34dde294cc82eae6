package service

import (
	"github.com/gin-gonic/gin"

	"github.com/cloudvault/cloudvault-backend/internal/auth/middleware"
	apperrors "github.com/cloudvault/cloudvault-backend/internal/pkg/errors"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/response"
	"github.com/cloudvault/cloudvault-backend/internal/storage/biz"
)

// FolderService exposes the folder hierarchy over HTTP
type FolderService struct {
	tree   *biz.FolderTree
	logger *logger.Logger
}

// NewFolderService creates the folder service
func NewFolderService(tree *biz.FolderTree, log *logger.Logger) *FolderService {
	return &FolderService{tree: tree, logger: log}
}

// CreateFolderRequest creates a folder
type CreateFolderRequest struct {
	Name     string  `json:"name" binding:"required"`
	ParentID *string `json:"parent_id"`
}

// Create handles POST /folders
func (s *FolderService) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "missing identity")
		return
	}

	var req CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	f, err := s.tree.Create(c.Request.Context(), userID, req.ParentID, req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toFolderView(f))
}

// Get handles GET /folders/:id
func (s *FolderService) Get(c *gin.Context) {
	f, err := s.ownedFolder(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toFolderView(f))
}

// Subtree handles GET /folders/:id/subtree
func (s *FolderService) Subtree(c *gin.Context) {
	f, err := s.ownedFolder(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	subtree, err := s.tree.ListSubtree(c.Request.Context(), f.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toFolderViews(subtree))
}

// RenameFolderRequest renames a folder
type RenameFolderRequest struct {
	Name string `json:"name" binding:"required"`
}

// Rename handles PATCH /folders/:id/rename
func (s *FolderService) Rename(c *gin.Context) {
	f, err := s.ownedFolder(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req RenameFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	renamed, err := s.tree.Rename(c.Request.Context(), f.ID, req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toFolderView(renamed))
}

// MoveFolderRequest reparents a folder; null parent moves it to root level
type MoveFolderRequest struct {
	NewParentID *string `json:"new_parent_id"`
}

// Move handles PATCH /folders/:id/move
func (s *FolderService) Move(c *gin.Context) {
	f, err := s.ownedFolder(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req MoveFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	moved, err := s.tree.Move(c.Request.Context(), f.ID, req.NewParentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toFolderView(moved))
}

// Delete handles DELETE /folders/:id, cascading over the subtree
func (s *FolderService) Delete(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	f, err := s.ownedFolder(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := s.tree.SoftDelete(c.Request.Context(), f.ID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Restore handles POST /folders/:id/restore; descendants stay deleted
func (s *FolderService) Restore(c *gin.Context) {
	f, err := s.ownedFolder(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := s.tree.Restore(c.Request.Context(), f.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ownedFolder loads the path folder and enforces ownership
func (s *FolderService) ownedFolder(c *gin.Context) (*biz.Folder, error) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return nil, apperrors.New(apperrors.ErrUnauthorized)
	}
	f, err := s.tree.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if f.OwnerID != userID {
		return nil, apperrors.New(apperrors.ErrFolderNotFound, f.ID)
	}
	return f, nil
}
