// Package handler exposes HTTP handlers for the userdata resource.  List,
// create, retrieve and update answer with the public view of a record; only
// the registration id lookup returns the full record including contact
// details.
package handler

import (
    "errors"   // errors unwraps sentinel values from the store
    "fmt"      // fmt renders bind error messages
    "net/http" // http provides status code constants
    "net/url"  // url decodes raw path segments
    "strconv"  // strconv parses the numeric record id
    "strings"  // strings trims incoming values
    "time"     // time stamps events and metrics

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/userdata-registry/internal/cache"
    "github.com/iliyamo/userdata-registry/internal/logging"
    "github.com/iliyamo/userdata-registry/internal/metrics"
    "github.com/iliyamo/userdata-registry/internal/model"
    "github.com/iliyamo/userdata-registry/internal/queue"
    "github.com/iliyamo/userdata-registry/internal/repository"
    "github.com/iliyamo/userdata-registry/internal/service"
    "github.com/iliyamo/userdata-registry/internal/validation"
)

// Response messages shared with existing API clients.
const (
    msgNotFound     = "Not found."
    msgServerError  = "A server error occurred."
    msgUserNotFound = "User not found"
    msgDuplicateReg = "user data with this registrationid already exists."
)

// UserDataHandler bundles the dependencies of the /userdata endpoints.
type UserDataHandler struct {
    Store   repository.UserDataStore // Store persists records
    Cache   *cache.RecordCache       // Cache serves registration lookups; nil disables it
    Events  service.EventPublisher   // Events receives lifecycle events
    Metrics *metrics.Metrics         // Metrics counts operations; nil disables it
    Log     *logrus.Entry
}

// NewUserDataHandler constructs a UserDataHandler and panics if the store is nil.
func NewUserDataHandler(store repository.UserDataStore, c *cache.RecordCache, events service.EventPublisher, m *metrics.Metrics, log *logrus.Entry) *UserDataHandler {
    if store == nil {
        panic("nil store passed to NewUserDataHandler")
    }
    if events == nil {
        events = service.NopPublisher{}
    }
    if log == nil {
        log = logging.Logger()
    }
    return &UserDataHandler{Store: store, Cache: c, Events: events, Metrics: m, Log: log}
}

// userDataRequest is the writable part of a record.  Pointers distinguish
// an omitted field from an empty one.
type userDataRequest struct {
    RegistrationID *string `json:"registrationid"`
    Type           *string `json:"type"`
    Name           *string `json:"name"`
    Email          *string `json:"email"`
    Phone          *string `json:"phone"`
}

// apply copies the supplied fields onto d with surrounding whitespace
// trimmed.  Unless partial is set, omitted fields are reported as required.
func (r userDataRequest) apply(d *model.UserData, partial bool) validation.Errors {
    missing := validation.Errors{}
    set := func(field string, src, dst *string) {
        if src == nil {
            if !partial {
                missing.Add(field, validation.MsgRequired)
            }
            return
        }
        *dst = strings.TrimSpace(*src)
    }
    set("registrationid", r.RegistrationID, &d.RegistrationID)
    set("type", r.Type, &d.Type)
    set("name", r.Name, &d.Name)
    set("email", r.Email, &d.Email)
    set("phone", r.Phone, &d.Phone)
    return missing
}

// parseID reads the :id path parameter.  Non-numeric ids never match a record.
func parseID(c echo.Context) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    return id, err == nil
}

func notFound(c echo.Context) error {
    return c.JSON(http.StatusNotFound, map[string]string{"detail": msgNotFound})
}

// bindError renders a body that could not be decoded.
func bindError(c echo.Context, err error) error {
    code, msg := http.StatusBadRequest, err.Error()
    var he *echo.HTTPError
    if errors.As(err, &he) {
        code, msg = he.Code, fmt.Sprint(he.Message)
    }
    if code == http.StatusBadRequest {
        msg = "JSON parse error - " + msg
    }
    return c.JSON(code, map[string]string{"detail": msg})
}

func (h *UserDataHandler) serverError(c echo.Context, op string, err error) error {
    h.Log.WithError(err).WithFields(logrus.Fields{
        "operation":  op,
        "request_id": c.Response().Header().Get(echo.HeaderXRequestID),
    }).Error("userdata operation failed")
    return c.JSON(http.StatusInternalServerError, map[string]string{"detail": msgServerError})
}

// validate runs the struct validator on d and folds in missing fields.
// It returns nil when d may be written.
func (h *UserDataHandler) validate(c echo.Context, d *model.UserData, missing validation.Errors) (validation.Errors, error) {
    if err := c.Validate(d); err != nil {
        var verrs validation.Errors
        if !errors.As(err, &verrs) {
            return nil, err
        }
        missing.Merge(verrs)
    }
    if len(missing) == 0 {
        return nil, nil
    }
    return missing, nil
}

func (h *UserDataHandler) publish(c echo.Context, event string, d *model.UserData) {
    // Publisher errors are already logged; the mutation itself has succeeded.
    _ = h.Events.Publish(c.Request().Context(), queue.NewUserDataEvent(event, d, time.Now()))
}

// List handles GET /userdata/ and returns every record's public view in insertion order.
func (h *UserDataHandler) List(c echo.Context) error {
    start, outcome := time.Now(), metrics.OutcomeOK
    defer func() { h.Metrics.Observe("list", outcome, start) }()

    items, err := h.Store.List(c.Request().Context())
    if err != nil {
        outcome = metrics.OutcomeError
        return h.serverError(c, "list", err)
    }
    return c.JSON(http.StatusOK, model.PublicList(items))
}

// Create handles POST /userdata/.
func (h *UserDataHandler) Create(c echo.Context) error {
    start, outcome := time.Now(), metrics.OutcomeOK
    defer func() { h.Metrics.Observe("create", outcome, start) }()

    var req userDataRequest
    if err := c.Bind(&req); err != nil {
        outcome = metrics.OutcomeInvalid
        return bindError(c, err)
    }
    d := &model.UserData{}
    verrs, err := h.validate(c, d, req.apply(d, false))
    if err != nil {
        outcome = metrics.OutcomeError
        return h.serverError(c, "create", err)
    }
    if verrs != nil {
        outcome = metrics.OutcomeInvalid
        return c.JSON(http.StatusBadRequest, verrs)
    }

    ctx := c.Request().Context()
    if err := h.Store.Create(ctx, d); err != nil {
        if errors.Is(err, repository.ErrConflict) {
            outcome = metrics.OutcomeConflict
            return c.JSON(http.StatusBadRequest, validation.Errors{"registrationid": {msgDuplicateReg}})
        }
        outcome = metrics.OutcomeError
        return h.serverError(c, "create", err)
    }
    h.Metrics.IncrementRecordsCreated()
    h.Cache.Invalidate(ctx, d.RegistrationID)
    h.Log.WithField("record", d.String()).Info("userdata created")
    h.publish(c, queue.EventCreated, d)

    c.Response().Header().Set(echo.HeaderLocation, fmt.Sprintf("/userdata/%d/", d.ID))
    return c.JSON(http.StatusCreated, d.Public())
}

// Retrieve handles GET /userdata/:id.
func (h *UserDataHandler) Retrieve(c echo.Context) error {
    start, outcome := time.Now(), metrics.OutcomeOK
    defer func() { h.Metrics.Observe("retrieve", outcome, start) }()

    id, ok := parseID(c)
    if !ok {
        outcome = metrics.OutcomeNotFound
        return notFound(c)
    }
    d, err := h.Store.GetByID(c.Request().Context(), id)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            outcome = metrics.OutcomeNotFound
            return notFound(c)
        }
        outcome = metrics.OutcomeError
        return h.serverError(c, "retrieve", err)
    }
    return c.JSON(http.StatusOK, d.Public())
}

// Update handles PUT and PATCH /userdata/:id.  PUT replaces all writable
// fields; PATCH changes only the supplied ones.
func (h *UserDataHandler) Update(c echo.Context) error {
    start, outcome := time.Now(), metrics.OutcomeOK
    defer func() { h.Metrics.Observe("update", outcome, start) }()

    id, ok := parseID(c)
    if !ok {
        outcome = metrics.OutcomeNotFound
        return notFound(c)
    }
    ctx := c.Request().Context()
    existing, err := h.Store.GetByID(ctx, id)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            outcome = metrics.OutcomeNotFound
            return notFound(c)
        }
        outcome = metrics.OutcomeError
        return h.serverError(c, "update", err)
    }

    var req userDataRequest
    if err := c.Bind(&req); err != nil {
        outcome = metrics.OutcomeInvalid
        return bindError(c, err)
    }
    d := *existing // work on a copy so a failed update leaves existing intact
    partial := c.Request().Method == http.MethodPatch
    verrs, err := h.validate(c, &d, req.apply(&d, partial))
    if err != nil {
        outcome = metrics.OutcomeError
        return h.serverError(c, "update", err)
    }
    if verrs != nil {
        outcome = metrics.OutcomeInvalid
        return c.JSON(http.StatusBadRequest, verrs)
    }

    if err := h.Store.Update(ctx, &d); err != nil {
        switch {
        case errors.Is(err, repository.ErrNotFound): // deleted since it was read
            outcome = metrics.OutcomeNotFound
            return notFound(c)
        case errors.Is(err, repository.ErrConflict):
            outcome = metrics.OutcomeConflict
            return c.JSON(http.StatusBadRequest, validation.Errors{"registrationid": {msgDuplicateReg}})
        }
        outcome = metrics.OutcomeError
        return h.serverError(c, "update", err)
    }
    h.Cache.Invalidate(ctx, existing.RegistrationID, d.RegistrationID)
    h.publish(c, queue.EventUpdated, &d)
    return c.JSON(http.StatusOK, d.Public())
}

// Delete handles DELETE /userdata/:id.  Deleting an id twice yields 404.
func (h *UserDataHandler) Delete(c echo.Context) error {
    start, outcome := time.Now(), metrics.OutcomeOK
    defer func() { h.Metrics.Observe("delete", outcome, start) }()

    id, ok := parseID(c)
    if !ok {
        outcome = metrics.OutcomeNotFound
        return notFound(c)
    }
    ctx := c.Request().Context()
    removed, err := h.Store.Delete(ctx, id)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            outcome = metrics.OutcomeNotFound
            return notFound(c)
        }
        outcome = metrics.OutcomeError
        return h.serverError(c, "delete", err)
    }
    h.Cache.Invalidate(ctx, removed.RegistrationID)
    h.Log.WithField("record", removed.String()).Info("userdata deleted")
    h.publish(c, queue.EventDeleted, removed)
    return c.NoContent(http.StatusNoContent)
}

// GetByRegistration handles GET /userdata/registration/:registrationid.
// The registration id is matched exactly.  Unlike the other endpoints an
// unexpected failure is reported with the raw error text.
func (h *UserDataHandler) GetByRegistration(c echo.Context) error {
    start, outcome := time.Now(), metrics.OutcomeOK
    defer func() { h.Metrics.Observe("lookup", outcome, start) }()

    regID, ok := registrationParam(c)
    if !ok {
        outcome = metrics.OutcomeNotFound
        return c.JSON(http.StatusNotFound, map[string]string{"error": msgUserNotFound})
    }
    ctx := c.Request().Context()
    if d, ok := h.Cache.Get(ctx, regID); ok {
        outcome = metrics.OutcomeCacheHit
        return c.JSON(http.StatusOK, d.Full())
    }

    gen := h.Cache.Generation(ctx, regID) // read before the store so a racing write wins
    d, err := h.Store.GetByRegistrationID(ctx, regID)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            outcome = metrics.OutcomeNotFound
            return c.JSON(http.StatusNotFound, map[string]string{"error": msgUserNotFound})
        }
        outcome = metrics.OutcomeError
        h.Log.WithError(err).WithField("registrationid", regID).Error("registration lookup failed")
        return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
    }
    h.Cache.Fill(ctx, gen, d)
    return c.JSON(http.StatusOK, d.Full())
}

// registrationParam returns the decoded :registrationid segment.  Echo
// routes on the raw path whenever the client's escaping differs from Go's
// canonical form, and then leaves the segment encoded.
func registrationParam(c echo.Context) (string, bool) {
    v := c.Param("registrationid")
    if c.Request().URL.RawPath == "" {
        return v, true
    }
    decoded, err := url.PathUnescape(v)
    if err != nil {
        return "", false
    }
    return decoded, true
}
