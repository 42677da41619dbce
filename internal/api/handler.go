package api

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"account-service/internal/apperror"
	"account-service/internal/s3"
	"account-service/internal/service"
)

type AccountHandler struct {
	accounts  service.AccountService
	presigner *s3.AvatarPresigner
	validate  *validator.Validate
}

func NewAccountHandler(accounts service.AccountService, presigner *s3.AvatarPresigner) *AccountHandler {
	return &AccountHandler{
		accounts:  accounts,
		presigner: presigner,
		validate:  validator.New(),
	}
}

func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	switch apperror.KindOf(err) {
	case apperror.Conflict:
		status = fiber.StatusConflict
	case apperror.Unauthorized:
		status = fiber.StatusUnauthorized
	case apperror.Forbidden:
		status = fiber.StatusForbidden
	case apperror.NotFound:
		status = fiber.StatusNotFound
	case apperror.InvalidOTP:
		status = fiber.StatusBadRequest
	case apperror.DeliveryFailure:
		status = fiber.StatusBadGateway
	}

	return c.Status(status).JSON(fiber.Map{"error": apperror.Message(err)})
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=2"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *AccountHandler) Register(c *fiber.Ctx) error {
	var request RegisterRequest

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON", "details": err.Error()})
	}

	if err := h.validate.Struct(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input", "details": err.Error()})
	}

	userID, err := h.accounts.Register(c.Context(), request.Username, request.Email, request.Password)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully",
		"userId":  userID,
	})
}

func (h *AccountHandler) RegisterAdmin(c *fiber.Ctx) error {
	var request RegisterRequest

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON", "details": err.Error()})
	}

	if err := h.validate.Struct(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input", "details": err.Error()})
	}

	userID, err := h.accounts.RegisterAdmin(c.Context(), request.Username, request.Email, request.Password)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Admin user registered successfully",
		"userId":  userID,
	})
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AccountHandler) Login(c *fiber.Ctx) error {
	var request LoginRequest

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	if err := h.validate.Struct(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input", "details": err.Error()})
	}

	sessionToken, profile, err := h.accounts.Login(c.Context(), request.Email, request.Password)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"token": sessionToken,
		"user":  profile,
	})
}

func (h *AccountHandler) ListUsers(c *fiber.Ctx) error {
	profiles, err := h.accounts.ListUsers(c.Context())
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(profiles)
}

type UpdateProfileRequest struct {
	Username          *string `json:"username" validate:"omitempty,min=2"`
	Email             *string `json:"email" validate:"omitempty,email"`
	Password          *string `json:"password" validate:"omitempty,min=8"`
	ProfilePictureURL *string `json:"profile_picture_url" validate:"omitempty,url"`
}

func (h *AccountHandler) UpdateSelf(c *fiber.Ctx) error {
	claims, err := SessionClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	var request UpdateProfileRequest

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	if err := h.validate.Struct(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input", "details": err.Error()})
	}

	profile, err := h.accounts.UpdateSelf(c.Context(), claims.UserID, service.UpdateProfileInput{
		Username:          request.Username,
		Email:             request.Email,
		Password:          request.Password,
		ProfilePictureURL: request.ProfilePictureURL,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(profile)
}

func (h *AccountHandler) DeleteSelf(c *fiber.Ctx) error {
	claims, err := SessionClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.accounts.DeleteSelf(c.Context(), claims.UserID); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "User deleted successfully"})
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *AccountHandler) ForgotPassword(c *fiber.Ctx) error {
	var request ForgotPasswordRequest

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	if err := h.validate.Struct(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input", "details": err.Error()})
	}

	if err := h.accounts.ForgotPassword(c.Context(), request.Email); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "OTP sent to your email address"})
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	OTP         string `json:"otp" validate:"required,len=6"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

func (h *AccountHandler) ResetPassword(c *fiber.Ctx) error {
	var request ResetPasswordRequest

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	if err := h.validate.Struct(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input", "details": err.Error()})
	}

	if err := h.accounts.ResetPassword(c.Context(), request.Email, request.OTP, request.NewPassword); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Password reset successful"})
}

// AvatarUploadURL hands out a presigned PUT URL; the client uploads the file
// there and then saves the public URL through UpdateSelf.
func (h *AccountHandler) AvatarUploadURL(c *fiber.Ctx) error {
	if h.presigner == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Avatar uploads are not configured"})
	}

	claims, err := SessionClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	objectKey := fmt.Sprintf("avatars/%s", claims.UserID)
	uploadURL, err := h.presigner.PresignedUploadURL(c.Context(), objectKey)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate upload URL"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"upload_url": uploadURL,
		"object_key": objectKey,
	})
}
