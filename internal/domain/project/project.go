package project

import (
	"errors"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/date"
	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/google/uuid"
)

type Project struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Description   string      `json:"description,omitempty"`
	StartDate     date.Date   `json:"startDate"`
	EndDate       *date.Date  `json:"endDate,omitempty"`
	ResponsibleID string      `json:"responsibleId"`
	Responsible   *user.Brief `json:"responsible,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// Brief is embedded in task responses.
type Brief struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (p Project) Brief() Brief {
	return Brief{ID: p.ID, Name: p.Name, Description: p.Description}
}

var ErrNotFound = errors.New("project not found")

type CreateProjectRequest struct {
	Name          string     `json:"name" binding:"required,min=1,max=200"`
	Description   string     `json:"description" binding:"omitempty,max=1000"`
	StartDate     *date.Date `json:"startDate" binding:"required"`
	EndDate       *date.Date `json:"endDate"`
	ResponsibleID string     `json:"responsibleId" binding:"required,uuid"`
}

// full replacement, same rules as create
type UpdateProjectRequest = CreateProjectRequest

func NewFromCreateRequest(req CreateProjectRequest) Project {
	now := time.Now().UTC()

	p := Project{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Description:   req.Description,
		EndDate:       req.EndDate,
		ResponsibleID: req.ResponsibleID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.StartDate != nil {
		p.StartDate = *req.StartDate
	}
	return p
}
