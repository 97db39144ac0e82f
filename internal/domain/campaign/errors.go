package campaign

import "errors"

var (
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrNotCampaignOwner    = errors.New("you do not own this campaign")
	ErrInvalidStatus       = errors.New("invalid campaign status for this operation")
	ErrCampaignEnded       = errors.New("campaign duration has already elapsed")
	ErrCampaignLimitReached = errors.New("active campaign limit reached")
	ErrTitleChangeLimit    = errors.New("daily title change limit reached")
	ErrDuplicateVariants   = errors.New("title variants must be unique")
)
