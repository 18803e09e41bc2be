package dynamo

// DynamoDB attribute names used in keys and index queries.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldRegistrationID = "registration_id"
	fieldEmail          = "email"
	fieldUsername       = "username"
)
