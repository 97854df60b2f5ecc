package domain

// Team groups users under an optional lead.
type Team struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	TeamLeadID *string      `json:"team_lead_id,omitempty"`
	Members    []TeamMember `json:"members"`
}

// TeamMember is a user's membership in a team.
type TeamMember struct {
	UserID                   string `json:"user_id"`
	ReceiveTeamNotifications bool   `json:"receive_team_notifications"`
}

// OptedInMemberIDs returns members that receive team-wide notifications, in membership order.
func (t *Team) OptedInMemberIDs() []string {
	ids := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		if m.ReceiveTeamNotifications {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}
