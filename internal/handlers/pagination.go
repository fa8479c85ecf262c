package handlers

import (
	"strconv"

	"storefront/internal/apperror"
	"storefront/internal/models"
)

func parsePaginationParams(pageStr, limitStr string) (models.Page, error) {
	page := models.Page{Number: models.DefaultPage, Limit: models.DefaultLimit}

	if pageStr != "" {
		p, err := strconv.ParseInt(pageStr, 10, 64)
		if err != nil || p < 1 {
			return models.Page{}, apperror.BadRequest("page must be a positive integer")
		}
		if p > models.MaxPage {
			return models.Page{}, apperror.BadRequest("page is too large")
		}
		page.Number = p
	}

	if limitStr != "" {
		l, err := strconv.ParseInt(limitStr, 10, 64)
		if err != nil || l < 1 {
			return models.Page{}, apperror.BadRequest("limit must be a positive integer")
		}
		page.Limit = l
	}

	return page, nil
}
