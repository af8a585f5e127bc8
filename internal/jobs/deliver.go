package jobs

import (
	"context"

	"notification-service/internal/models"
	"notification-service/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// queryHorizonDays widens the storage pre-filter beyond the user's own
// daysInAdvance so entities carrying a larger override are still loaded.
const queryHorizonDays = 90

// candidate is an entity that is due on at least one channel.
type candidate struct {
	notice  Notice
	email   bool
	browser bool
}

type delivery struct {
	sent    int
	failed  int
	errs    []error
	emailed []bson.ObjectID
	// browsed holds entities whose browser alert was persisted, live or
	// pending.
	browsed []bson.ObjectID
}

// deliverAll sends every candidate over its due channels. Emails go one at a
// time; browser alerts are batched through the recorder's bounded path.
func deliverAll(ctx context.Context, d *Dispatcher, job string, user models.User, store repository.HistoryStore, candidates []candidate) delivery {
	var out delivery
	var browserNotices []Notice

	for _, c := range candidates {
		if c.email {
			ok, err := d.SendEmail(ctx, job, user, store, c.notice)
			switch {
			case err != nil:
				out.failed++
				out.errs = append(out.errs, err)
			case ok:
				out.sent++
				out.emailed = append(out.emailed, c.notice.Entity.EntityID())
			default:
				out.failed++
			}
		}
		if c.browser {
			browserNotices = append(browserNotices, c.notice)
		}
	}

	if len(browserNotices) == 0 {
		return out
	}

	// The recorder keys a batch by entity id, so alert types of the same
	// entity go in separate batches.
	var order []string
	groups := make(map[string][]Notice)
	for _, n := range browserNotices {
		if _, ok := groups[n.AlertType]; !ok {
			order = append(order, n.AlertType)
		}
		groups[n.AlertType] = append(groups[n.AlertType], n)
	}

	for _, alertType := range order {
		notices := groups[alertType]
		report := d.SendBrowser(ctx, job, user, store, notices)
		out.sent += report.Successful
		out.failed += report.Failed

		failed := make(map[string]struct{}, len(report.Errors))
		for _, e := range report.Errors {
			failed[e.ItemID] = struct{}{}
		}
		for _, n := range notices {
			id := n.Entity.EntityID()
			if _, ok := failed[id.Hex()]; !ok {
				out.browsed = append(out.browsed, id)
			}
		}
	}
	return out
}

// userPolicy loads the user's preferences, falling back to the defaults a
// new user receives.
func userPolicy(ctx context.Context, prefs repository.PreferenceStore, userID bson.ObjectID) (*models.UserPreference, error) {
	pref, err := prefs.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if pref == nil {
		pref = models.DefaultUserPreference(userID)
	}
	return pref, nil
}
