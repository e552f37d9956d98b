package database

// SQL used by the PostgreSQL store. Version resolution ranks rows with
// ROW_NUMBER per partition; the in-memory store mirrors it in lineage.Resolve.

const versionColumns = `uuid, code, object_type, object_id, adjust_on,
	created_date, created_by_uuid, modified_date, modified_by_uuid,
	start_validity, end_validity, title, description, fields`

const draftColumns = versionColumns + `, module_id, deleted`

const (
	GetStatic = `
		SELECT code, object_type, object_id, owner_one_uuid, owner_two_uuid, cached_title
		FROM object_statics
		WHERE code = $1`

	LockStatic = GetStatic + `
		FOR UPDATE`

	InsertStatic = `
		INSERT INTO object_statics (code, object_type, object_id, owner_one_uuid, owner_two_uuid, cached_title)
		VALUES ($1, $2, $3, $4, $5, $6)`

	UpdateCachedTitle = `
		UPDATE object_statics
		SET cached_title = $2
		WHERE code = $1`

	// Serialises id allocation per object type until the transaction ends.
	LockObjectType = `SELECT pg_advisory_xact_lock(hashtext('object_statics:' || $1))`

	NextObjectID = `
		SELECT COALESCE(MAX(object_id), 0) + 1
		FROM object_statics
		WHERE object_type = $1`

	InsertVersion = `
		INSERT INTO objects (` + versionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	GetVersion = `
		SELECT ` + versionColumns + `
		FROM objects
		WHERE uuid = $1`

	ListVersions = `
		SELECT ` + versionColumns + `
		FROM objects
		WHERE code = $1
		ORDER BY modified_date, uuid`

	// $1 code or '', $2 object type or '', $3 evaluation time, $4 valid mode.
	ResolveVersions = `
		SELECT ` + versionColumns + `
		FROM (
			SELECT ` + versionColumns + `,
				ROW_NUMBER() OVER (PARTITION BY code ORDER BY modified_date DESC, uuid DESC) AS rn
			FROM objects
			WHERE ($1::text = '' OR code = $1)
				AND ($2::text = '' OR object_type = $2)
				AND modified_date <= $3
				AND (NOT $4::boolean OR start_validity <= $3)
		) ranked
		WHERE rn = 1
			AND (NOT $4::boolean OR end_validity IS NULL OR end_validity > $3)
		ORDER BY code, modified_date DESC`

	LatestModified = `
		SELECT MAX(modified_date)
		FROM objects
		WHERE code = $1`

	moduleColumns = `module_id, title, description, module_manager_1_uuid, module_manager_2_uuid,
		activated, closed, successful, temporary_locked,
		created_date, created_by_uuid, modified_date, modified_by_uuid`

	InsertModule = `
		INSERT INTO modules (title, description, module_manager_1_uuid, module_manager_2_uuid,
			activated, closed, successful, temporary_locked,
			created_date, created_by_uuid, modified_date, modified_by_uuid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING module_id`

	GetModule = `
		SELECT ` + moduleColumns + `
		FROM modules
		WHERE module_id = $1`

	LockModule = GetModule + `
		FOR UPDATE`

	UpdateModule = `
		UPDATE modules
		SET title = $2, description = $3, module_manager_1_uuid = $4, module_manager_2_uuid = $5,
			activated = $6, closed = $7, successful = $8, temporary_locked = $9,
			modified_date = $10, modified_by_uuid = $11
		WHERE module_id = $1`

	// $1 only active, $2 ids (empty for all).
	ListModules = `
		SELECT ` + moduleColumns + `
		FROM modules
		WHERE (NOT $1::boolean OR (activated AND NOT closed))
			AND (cardinality($2::bigint[]) = 0 OR module_id = ANY($2))
		ORDER BY module_id`

	InsertModuleStatus = `
		INSERT INTO module_status_history (module_id, status, created_date, created_by_uuid)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	ListModuleStatuses = `
		SELECT id, module_id, status, created_date, created_by_uuid
		FROM module_status_history
		WHERE module_id = $1
		ORDER BY created_date, id`

	contextColumns = `module_id, code, object_type, object_id, action, explanation, conclusion,
		original_adjust_on, hidden, created_date, created_by_uuid, modified_date, modified_by_uuid`

	GetContext = `
		SELECT ` + contextColumns + `
		FROM module_object_context
		WHERE module_id = $1 AND code = $2`

	LockContext = GetContext + `
		FOR UPDATE`

	InsertContext = `
		INSERT INTO module_object_context (` + contextColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	UpdateContext = `
		UPDATE module_object_context
		SET action = $3, explanation = $4, conclusion = $5, original_adjust_on = $6, hidden = $7,
			modified_date = $8, modified_by_uuid = $9
		WHERE module_id = $1 AND code = $2`

	ListContexts = `
		SELECT ` + contextColumns + `
		FROM module_object_context
		WHERE module_id = $1 AND ($2::boolean OR NOT hidden)
		ORDER BY code`

	InsertDraft = `
		INSERT INTO module_objects (` + draftColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	// $1 module id or 0, $2 code or '', $3 evaluation time, $4 valid mode.
	ResolveDrafts = `
		SELECT ` + draftColumns + `
		FROM (
			SELECT ` + draftColumns + `,
				ROW_NUMBER() OVER (PARTITION BY module_id, code ORDER BY modified_date DESC, uuid DESC) AS rn
			FROM module_objects
			WHERE ($1::bigint = 0 OR module_id = $1)
				AND ($2::text = '' OR code = $2)
				AND modified_date <= $3
				AND (NOT $4::boolean OR start_validity <= $3)
		) ranked
		WHERE rn = 1
			AND (NOT $4::boolean OR end_validity IS NULL OR end_validity > $3)
		ORDER BY code, modified_date DESC`

	ListDrafts = `
		SELECT ` + draftColumns + `
		FROM module_objects
		WHERE module_id = $1 AND code = $2
		ORDER BY modified_date, uuid`

	LatestDraftModified = `
		SELECT MAX(modified_date)
		FROM module_objects
		WHERE module_id = $1 AND code = $2`

	relationColumns = `from_code, to_code, version, requested_by_code,
		from_acknowledged, from_acknowledged_by_uuid, from_title, from_explanation,
		to_acknowledged, to_acknowledged_by_uuid, to_title, to_explanation,
		denied, deleted_at, created_date, created_by_uuid, modified_date, modified_by_uuid`

	LockRelationPair = `SELECT pg_advisory_xact_lock(hashtext('acknowledged_relations:' || $1 || ':' || $2))`

	GetRelation = `
		SELECT ` + relationColumns + `
		FROM acknowledged_relations
		WHERE from_code = $1 AND to_code = $2
		ORDER BY version DESC
		LIMIT 1`

	InsertRelation = `
		INSERT INTO acknowledged_relations (` + relationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	UpdateRelation = `
		UPDATE acknowledged_relations
		SET from_acknowledged = $4, from_acknowledged_by_uuid = $5, from_title = $6, from_explanation = $7,
			to_acknowledged = $8, to_acknowledged_by_uuid = $9, to_title = $10, to_explanation = $11,
			denied = $12, deleted_at = $13, modified_date = $14, modified_by_uuid = $15
		WHERE from_code = $1 AND to_code = $2 AND version = $3`

	ListRelations = `
		SELECT ` + relationColumns + `
		FROM (
			SELECT ` + relationColumns + `,
				ROW_NUMBER() OVER (PARTITION BY from_code, to_code ORDER BY version DESC) AS rn
			FROM acknowledged_relations
			WHERE from_code = $1 OR to_code = $1
		) ranked
		WHERE rn = 1
		ORDER BY from_code, to_code`
)
